// Package recorder implements the Flight Recorder (spec §4.10, §6): a
// per-tick structural/value-event log written in the "FDPR" wire
// format, plus deterministic commutative tick-state hashing for replay
// verification.
//
// Grounded on cmd/neo-snapshot/main.go's snapshot manifest (header +
// ordered body written with a fixed binary layout, read back
// tick-by-tick) generalized from one-shot chain snapshots to a
// streaming per-tick log.
package recorder

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/fdpkit/fdp/internal/obs/errkind"
	"github.com/fdpkit/fdp/system/entity"
)

// magic identifies an FDP recording file, per spec §6.
var magic = [4]byte{'F', 'D', 'P', 'R'}

// Manifest is a sidecar JSON file identifying one recording, written
// next to the "FDPR" body so offline tooling (fdpinspect, pgstore
// imports) can address a recording by a stable id rather than its file
// path alone. Grounded on cmd/neo-snapshot/main.go's snapshotManifest.
type Manifest struct {
	SessionID string    `json:"sessionId"`
	Instance  int       `json:"instance"`
	CreatedAt time.Time `json:"createdAt"`
	BodyPath  string    `json:"bodyPath"`
}

// NewSessionID mints a fresh recording session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// WriteManifest writes m as JSON to path.
func WriteManifest(path string, m Manifest) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errkind.Wrap(errkind.Invariant, "recorder: failed to marshal manifest", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return errkind.Wrap(errkind.Invariant, "recorder: failed to write manifest", err)
	}
	return nil
}

// ReadManifest reads a Manifest previously written by WriteManifest.
func ReadManifest(path string) (Manifest, error) {
	var m Manifest
	b, err := os.ReadFile(path)
	if err != nil {
		return m, errkind.Wrap(errkind.Invariant, "recorder: failed to read manifest", err)
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return m, errkind.Wrap(errkind.Invariant, "recorder: failed to parse manifest", err)
	}
	return m, nil
}

// StructuralOpKind tags one structural log entry.
type StructuralOpKind uint8

const (
	OpCreate StructuralOpKind = iota
	OpDestroy
	OpAdd
	OpRemove
)

// StructuralOp is one recorded structural mutation.
type StructuralOp struct {
	Kind    StructuralOpKind
	Entity  entity.Entity
	TypeID  entity.TypeID
	Payload []byte
}

// EventRecord is one recorded value-event publication.
type EventRecord struct {
	Channel string
	Payload []byte
}

// TickRecord is the full per-tick entry: header plus structural and
// event logs, and an opaque per-module input blob used to drive replay
// deterministically (spec §5: "non-determinism sources must be routed
// through captured inputs").
type TickRecord struct {
	Tick       int64
	TimeS      float64
	Delta      float32
	Inputs     []byte
	Structural []StructuralOp
	Events     []EventRecord
	// StateHash is computed by the caller via HashState after playback
	// and stored here for later replay comparison; it is not written to
	// the wire format (spec §6 does not include it in the record), so
	// replay recomputes and compares it out-of-band.
	StateHash uint64 `json:"-"`
}

// TypeNamer resolves a TypeID to its registered name, used to (re-)emit
// the type table preamble.
type TypeNamer interface {
	TypeName(id entity.TypeID) string
}

// Writer streams TickRecords in the spec §6 wire format: a type table
// preamble (id, name) emitted once per newly-seen type, then
// length-prefixed tick records.
type Writer struct {
	w           *bufio.Writer
	emittedType map[entity.TypeID]bool
}

// NewWriter wraps w. The caller must call Close to flush.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w), emittedType: make(map[entity.TypeID]bool)}
}

// Close flushes buffered output.
func (rw *Writer) Close() error { return rw.w.Flush() }

func writeU32(w io.Writer, v uint32) error { return binary.Write(w, binary.LittleEndian, v) }
func writeI64(w io.Writer, v int64) error  { return binary.Write(w, binary.LittleEndian, v) }
func writeF64(w io.Writer, v float64) error { return binary.Write(w, binary.LittleEndian, v) }
func writeF32(w io.Writer, v float32) error { return binary.Write(w, binary.LittleEndian, v) }
func writeU8(w io.Writer, v uint8) error   { return binary.Write(w, binary.LittleEndian, v) }

// ensureTypeEmitted writes the (typeId, name) preamble entry the first
// time id is seen.
func (rw *Writer) ensureTypeEmitted(id entity.TypeID, namer TypeNamer) error {
	if rw.emittedType[id] {
		return nil
	}
	name := ""
	if namer != nil {
		name = namer.TypeName(id)
	}
	if _, err := rw.w.Write([]byte{'T'}); err != nil {
		return err
	}
	if err := writeU32(rw.w, uint32(id)); err != nil {
		return err
	}
	if err := writeU32(rw.w, uint32(len(name))); err != nil {
		return err
	}
	if _, err := rw.w.WriteString(name); err != nil {
		return err
	}
	rw.emittedType[id] = true
	return nil
}

// WriteTick appends rec to the stream, emitting any not-yet-seen type
// table entries first.
func (rw *Writer) WriteTick(rec TickRecord, namer TypeNamer) error {
	for _, op := range rec.Structural {
		if op.Kind == OpAdd || op.Kind == OpRemove {
			if err := rw.ensureTypeEmitted(op.TypeID, namer); err != nil {
				return err
			}
		}
	}

	if _, err := rw.w.Write(magic[:]); err != nil {
		return err
	}
	if err := writeI64(rw.w, rec.Tick); err != nil {
		return err
	}
	if err := writeF64(rw.w, rec.TimeS); err != nil {
		return err
	}
	if err := writeF32(rw.w, rec.Delta); err != nil {
		return err
	}
	if err := writeU32(rw.w, uint32(len(rec.Inputs))); err != nil {
		return err
	}
	if _, err := rw.w.Write(rec.Inputs); err != nil {
		return err
	}

	if err := writeU32(rw.w, uint32(len(rec.Structural))); err != nil {
		return err
	}
	for _, op := range rec.Structural {
		if err := writeU8(rw.w, uint8(op.Kind)); err != nil {
			return err
		}
		if err := writeU32(rw.w, op.Entity.Index); err != nil {
			return err
		}
		if err := writeU32(rw.w, op.Entity.Generation); err != nil {
			return err
		}
		if err := writeU32(rw.w, uint32(op.TypeID)); err != nil {
			return err
		}
		if err := writeU32(rw.w, uint32(len(op.Payload))); err != nil {
			return err
		}
		if _, err := rw.w.Write(op.Payload); err != nil {
			return err
		}
	}

	if err := writeU32(rw.w, uint32(len(rec.Events))); err != nil {
		return err
	}
	for _, ev := range rec.Events {
		if err := writeU32(rw.w, uint32(len(ev.Channel))); err != nil {
			return err
		}
		if _, err := rw.w.WriteString(ev.Channel); err != nil {
			return err
		}
		if err := writeU32(rw.w, uint32(len(ev.Payload))); err != nil {
			return err
		}
		if _, err := rw.w.Write(ev.Payload); err != nil {
			return err
		}
	}
	return nil
}

// Reader reads back a stream written by Writer.
type Reader struct {
	r         *bufio.Reader
	typeNames map[entity.TypeID]string
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r), typeNames: make(map[entity.TypeID]string)}
}

func readU32(r io.Reader) (uint32, error) {
	var v uint32
	err := binary.Read(r, binary.LittleEndian, &v)
	return v, err
}

// ReadTick reads the next tick record, transparently consuming any type
// table ('T') entries that precede it. Returns io.EOF when the stream
// is exhausted.
func (rr *Reader) ReadTick() (TickRecord, error) {
	for {
		next, err := rr.r.Peek(1)
		if err != nil {
			return TickRecord{}, err
		}
		if next[0] == 'T' {
			if _, err := rr.r.Discard(1); err != nil {
				return TickRecord{}, err
			}
			id, err := readU32(rr.r)
			if err != nil {
				return TickRecord{}, err
			}
			nlen, err := readU32(rr.r)
			if err != nil {
				return TickRecord{}, err
			}
			name := make([]byte, nlen)
			if _, err := io.ReadFull(rr.r, name); err != nil {
				return TickRecord{}, err
			}
			rr.typeNames[entity.TypeID(id)] = string(name)
			continue
		}
		tag := make([]byte, 4)
		if _, err := io.ReadFull(rr.r, tag); err != nil {
			return TickRecord{}, err
		}
		if string(tag) != string(magic[:]) {
			return TickRecord{}, errkind.Invariantf("recorder: bad record magic %q", tag)
		}
		return rr.readTickBody()
	}
}

func (rr *Reader) readTickBody() (TickRecord, error) {
	var rec TickRecord
	if err := binary.Read(rr.r, binary.LittleEndian, &rec.Tick); err != nil {
		return rec, err
	}
	if err := binary.Read(rr.r, binary.LittleEndian, &rec.TimeS); err != nil {
		return rec, err
	}
	if err := binary.Read(rr.r, binary.LittleEndian, &rec.Delta); err != nil {
		return rec, err
	}
	inLen, err := readU32(rr.r)
	if err != nil {
		return rec, err
	}
	rec.Inputs = make([]byte, inLen)
	if _, err := io.ReadFull(rr.r, rec.Inputs); err != nil {
		return rec, err
	}

	opCount, err := readU32(rr.r)
	if err != nil {
		return rec, err
	}
	for i := uint32(0); i < opCount; i++ {
		var op StructuralOp
		var kind uint8
		if err := binary.Read(rr.r, binary.LittleEndian, &kind); err != nil {
			return rec, err
		}
		op.Kind = StructuralOpKind(kind)
		idx, err := readU32(rr.r)
		if err != nil {
			return rec, err
		}
		gen, err := readU32(rr.r)
		if err != nil {
			return rec, err
		}
		op.Entity = entity.Entity{Index: idx, Generation: gen}
		tid, err := readU32(rr.r)
		if err != nil {
			return rec, err
		}
		op.TypeID = entity.TypeID(tid)
		plen, err := readU32(rr.r)
		if err != nil {
			return rec, err
		}
		op.Payload = make([]byte, plen)
		if _, err := io.ReadFull(rr.r, op.Payload); err != nil {
			return rec, err
		}
		rec.Structural = append(rec.Structural, op)
	}

	evCount, err := readU32(rr.r)
	if err != nil {
		return rec, err
	}
	for i := uint32(0); i < evCount; i++ {
		clen, err := readU32(rr.r)
		if err != nil {
			return rec, err
		}
		chanBytes := make([]byte, clen)
		if _, err := io.ReadFull(rr.r, chanBytes); err != nil {
			return rec, err
		}
		plen, err := readU32(rr.r)
		if err != nil {
			return rec, err
		}
		payload := make([]byte, plen)
		if _, err := io.ReadFull(rr.r, payload); err != nil {
			return rec, err
		}
		rec.Events = append(rec.Events, EventRecord{Channel: string(chanBytes), Payload: payload})
	}

	return rec, nil
}

// ComponentSnapshot is one (entity, type, version, bytes) triple fed to
// HashState.
type ComponentSnapshot struct {
	Entity  entity.Entity
	TypeID  entity.TypeID
	Version uint64
	Bytes   []byte
}

// HashState computes the deterministic, commutative tick-state hash
// (spec §4.10): entries are sorted by entity index ascending (the
// spec's tie-break) before combining, so the result does not depend on
// the order callers happen to gather components in.
func HashState(snapshots []ComponentSnapshot) uint64 {
	sorted := append([]ComponentSnapshot(nil), snapshots...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Entity.Index != sorted[j].Entity.Index {
			return sorted[i].Entity.Index < sorted[j].Entity.Index
		}
		return sorted[i].TypeID < sorted[j].TypeID
	})

	h := fnv.New64a()
	for _, s := range sorted {
		fmt.Fprintf(h, "%d:%d:%d:", s.Entity.Index, s.TypeID, s.Version)
		h.Write(s.Bytes)
		h.Write([]byte{0})
	}
	return h.Sum64()
}
