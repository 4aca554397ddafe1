// Package eventbus implements the double-buffered event bus (spec
// §4.3): events published during a tick become visible to consumers
// only from the next SwapBuffers onward, giving every module a
// consistent, order-stable view of "this tick's events" regardless of
// publish order across modules.
//
// Grounded on system/core/bus.go's Bus: a registry of named channels
// fanned out to subscribers, generalized here to typed read/write
// buffers instead of the teacher's goroutine-per-subscriber dispatch,
// since spec §5 requires the bus to be single-threaded and
// deterministic rather than concurrent.
package eventbus

import (
	"reflect"

	"github.com/fdpkit/fdp/internal/obs/errkind"
)

// Value vs managed payload kind (spec §4.3) is not tracked separately
// here: Go's type system already distinguishes a bit-copyable struct
// from a reference-shaped one, and Publish/Consume are generic over T
// either way.

type channel struct {
	name     string
	elemType reflect.Type
	// front is readable this tick (populated by the previous
	// SwapBuffers); back accumulates this tick's Publish calls.
	front []any
	back  []any
}

// Bus is a double-buffered, single-threaded event bus. One Bus
// typically lives per world.
type Bus struct {
	channels map[string]*channel
	// swapping is set for the duration of SwapBuffers; Publish and
	// Consume fail with Misuse while it is set. The bus has no
	// subscriber callbacks, and publishing to a channel while consuming
	// the same channel is not detected.
	swapping bool
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{channels: make(map[string]*channel)}
}

func channelFor[T any](b *Bus, name string) *channel {
	c, ok := b.channels[name]
	if !ok {
		var zero T
		c = &channel{name: name, elemType: reflect.TypeOf(zero)}
		b.channels[name] = c
	}
	return c
}

// Publish appends v to channel name's write buffer. It becomes visible
// to Consume[T] only after the next SwapBuffers.
func Publish[T any](b *Bus, name string, v T) error {
	if b.swapping {
		return errkind.Misused("Publish called while SwapBuffers is in progress")
	}
	c := channelFor[T](b, name)
	if t := reflect.TypeOf(v); t != c.elemType {
		return errkind.BadSchema(0, 0).WithDetail("channel", name).WithDetail("expected", c.elemType.String()).WithDetail("got", t.String())
	}
	c.back = append(c.back, v)
	return nil
}

// Consume returns this tick's readable events for channel name, i.e.
// everything Published before the most recent SwapBuffers. The slice
// is read-only; callers must not mutate elements they intend to keep
// consistent with what other modules observe this tick.
func Consume[T any](b *Bus, name string) ([]T, error) {
	if b.swapping {
		return nil, errkind.Misused("Consume called while SwapBuffers is in progress")
	}
	c, ok := b.channels[name]
	if !ok {
		return nil, nil
	}
	var zero T
	if t := reflect.TypeOf(zero); t != c.elemType {
		return nil, errkind.BadSchema(0, 0).WithDetail("channel", name).WithDetail("expected", c.elemType.String()).WithDetail("got", t.String())
	}
	out := make([]T, len(c.front))
	for i, v := range c.front {
		out[i] = v.(T)
	}
	return out, nil
}

// Len reports how many events are currently readable on channel name.
func (b *Bus) Len(name string) int {
	c, ok := b.channels[name]
	if !ok {
		return 0
	}
	return len(c.front)
}

// SwapBuffers promotes every channel's write buffer to its read buffer
// and clears the write buffer, making the events published since the
// last swap readable and discarding the ones that were readable before.
// The scheduler calls it after the BeforeSync and AfterSync phases and
// once more at the end of every tick.
func (b *Bus) SwapBuffers() {
	b.swapping = true
	defer func() { b.swapping = false }()
	for _, c := range b.channels {
		c.front = c.back
		c.back = nil
	}
}

// ChannelNames returns the registered channel names, for diagnostics.
func (b *Bus) ChannelNames() []string {
	out := make([]string, 0, len(b.channels))
	for name := range b.channels {
		out = append(out, name)
	}
	return out
}
