// Package serialize implements the component Serialization Providers
// (spec §4.7): per-type encoders producing the little-endian wire
// encoding used by both the flight recorder and the replication driver.
//
// Two provider kinds per spec: FixedProvider for bit-copyable value
// components (compile-time constant size, encoding/binary little-endian
// struct encode), and ManagedProvider for reference-shaped components
// (length-prefixed, reflective, declaration-order field walk, forward
// compatible with unknown trailing bytes). This mirrors the teacher's
// split between typed protobuf/JSON codecs in infrastructure/ and the
// reflective config decoding in joeshaw/envdecode, generalized here to
// a from-scratch binary wire format since neither teacher dependency
// targets component payloads.
package serialize

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"reflect"

	"github.com/fdpkit/fdp/internal/obs/errkind"
	"github.com/fdpkit/fdp/system/cmdbuf"
	"github.com/fdpkit/fdp/system/entity"
)

// Provider is the type-erased interface both provider kinds implement.
type Provider interface {
	TypeID() entity.TypeID
	GetSize(value any) (int, error)
	Encode(value any, out []byte) (int, error)
	Apply(buf *cmdbuf.Buffer, e entity.Entity, in []byte) error
}

// FixedProvider encodes a bit-copyable value component T via
// encoding/binary, little-endian, fixed size.
type FixedProvider[T any] struct {
	id   entity.TypeID
	size int
}

// NewFixedProvider returns a provider for T registered under id. It
// panics if T is not a fixed-size type (binary.Size returns -1),
// matching the spec's "size is compile-time constant" requirement.
func NewFixedProvider[T any](id entity.TypeID) *FixedProvider[T] {
	var zero T
	size := binary.Size(zero)
	if size < 0 {
		panic(fmt.Sprintf("serialize: %T is not a fixed-layout type", zero))
	}
	return &FixedProvider[T]{id: id, size: size}
}

func (p *FixedProvider[T]) TypeID() entity.TypeID { return p.id }

func (p *FixedProvider[T]) GetSize(value any) (int, error) {
	return p.size, nil
}

func (p *FixedProvider[T]) Encode(value any, out []byte) (int, error) {
	v, ok := value.(T)
	if !ok {
		return 0, errkind.Invariantf("serialize: encode value type mismatch for type id %d", p.id)
	}
	if len(out) < p.size {
		return 0, errkind.TooSmall(p.size, len(out))
	}
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
		return 0, errkind.Invariantf("serialize: %v", err)
	}
	copy(out, buf.Bytes())
	return p.size, nil
}

// Apply decodes in as T and queues a Set on buf for e. in carries no
// type id, so no SchemaMismatch check is made here; a payload shorter
// than T's size fails with BufferTooSmall before anything is queued.
func (p *FixedProvider[T]) Apply(buf *cmdbuf.Buffer, e entity.Entity, in []byte) error {
	if len(in) < p.size {
		return errkind.TooSmall(p.size, len(in))
	}
	var v T
	r := bytes.NewReader(in[:p.size])
	if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
		return errkind.Invariantf("serialize: %v", err)
	}
	cmdbuf.Set(buf, e, v)
	return nil
}

// EncodeTagged encodes typeId (u32 LE) followed by the fixed payload,
// matching the recorder/replication wire envelope's typeId prefix.
func (p *FixedProvider[T]) EncodeTagged(value any) ([]byte, error) {
	out := make([]byte, 4+p.size)
	binary.LittleEndian.PutUint32(out[:4], uint32(p.id))
	if _, err := p.Encode(value, out[4:]); err != nil {
		return nil, err
	}
	return out, nil
}

// ManagedProvider reflectively encodes T's exported fields in
// declaration order: primitives as fixed-width little-endian, strings
// and slices as length-prefixed, nested managed structs recursively.
// Decoding tolerates unknown trailing bytes and defaults missing
// fields to zero (spec §4.7 forward compatibility).
type ManagedProvider[T any] struct {
	id entity.TypeID
}

// NewManagedProvider returns a reflective provider for T registered
// under id.
func NewManagedProvider[T any](id entity.TypeID) *ManagedProvider[T] {
	return &ManagedProvider[T]{id: id}
}

func (p *ManagedProvider[T]) TypeID() entity.TypeID { return p.id }

func (p *ManagedProvider[T]) GetSize(value any) (int, error) {
	var buf bytes.Buffer
	if err := encodeReflective(&buf, reflect.ValueOf(value)); err != nil {
		return 0, err
	}
	return buf.Len(), nil
}

func (p *ManagedProvider[T]) Encode(value any, out []byte) (int, error) {
	var buf bytes.Buffer
	if err := encodeReflective(&buf, reflect.ValueOf(value)); err != nil {
		return 0, err
	}
	if len(out) < buf.Len() {
		return 0, errkind.TooSmall(buf.Len(), len(out))
	}
	copy(out, buf.Bytes())
	return buf.Len(), nil
}

func (p *ManagedProvider[T]) Apply(buf *cmdbuf.Buffer, e entity.Entity, in []byte) error {
	var v T
	r := bytes.NewReader(in)
	if err := decodeReflective(r, reflect.ValueOf(&v).Elem()); err != nil {
		return err
	}
	cmdbuf.Set(buf, e, v)
	return nil
}

func encodeReflective(w *bytes.Buffer, v reflect.Value) error {
	for v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return errkind.Invariantf("serialize: managed provider requires a struct, got %s", v.Kind())
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		if err := encodeField(w, v.Field(i)); err != nil {
			return err
		}
	}
	return nil
}

func encodeField(w *bytes.Buffer, fv reflect.Value) error {
	switch fv.Kind() {
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64, reflect.Int,
		reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uint,
		reflect.Float32, reflect.Float64, reflect.Bool:
		return binary.Write(w, binary.LittleEndian, fv.Interface())
	case reflect.String:
		s := fv.String()
		if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
			return err
		}
		w.WriteString(s)
		return nil
	case reflect.Slice, reflect.Array:
		n := fv.Len()
		if err := binary.Write(w, binary.LittleEndian, uint32(n)); err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			if err := encodeField(w, fv.Index(i)); err != nil {
				return err
			}
		}
		return nil
	case reflect.Struct:
		return encodeReflective(w, fv)
	default:
		return errkind.Invariantf("serialize: unsupported managed field kind %s", fv.Kind())
	}
}

func decodeReflective(r *bytes.Reader, v reflect.Value) error {
	if v.Kind() != reflect.Struct {
		return errkind.Invariantf("serialize: managed provider requires a struct, got %s", v.Kind())
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		if r.Len() == 0 {
			break // missing trailing fields default to zero (forward compatibility)
		}
		if err := decodeField(r, v.Field(i)); err != nil {
			return err
		}
	}
	return nil
}

func decodeField(r *bytes.Reader, fv reflect.Value) error {
	switch fv.Kind() {
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64, reflect.Int,
		reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uint,
		reflect.Float32, reflect.Float64, reflect.Bool:
		ptr := reflect.New(fv.Type())
		if err := binary.Read(r, binary.LittleEndian, ptr.Interface()); err != nil {
			return errkind.Invariantf("serialize: %v", err)
		}
		fv.Set(ptr.Elem())
		return nil
	case reflect.String:
		var n uint32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return errkind.Invariantf("serialize: %v", err)
		}
		buf := make([]byte, n)
		if _, err := r.Read(buf); err != nil {
			return errkind.Invariantf("serialize: %v", err)
		}
		fv.SetString(string(buf))
		return nil
	case reflect.Slice:
		var n uint32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return errkind.Invariantf("serialize: %v", err)
		}
		out := reflect.MakeSlice(fv.Type(), int(n), int(n))
		for i := 0; i < int(n); i++ {
			if err := decodeField(r, out.Index(i)); err != nil {
				return err
			}
		}
		fv.Set(out)
		return nil
	case reflect.Struct:
		return decodeReflective(r, fv)
	default:
		return errkind.Invariantf("serialize: unsupported managed field kind %s", fv.Kind())
	}
}
