// Package device is the memory-mapped device framework: a synchronous
// Driver interface for simple register devices, an asynchronous device kind
// for devices that run their own update loop, and a small event bus that
// lets devices notify each other of register writes.
//
// Grounded on the teacher's Driver/DeviceReader/DeviceWriter interfaces and
// newDevice constructor shape (smoynes/elsie internal/vm/devices.go),
// generalized from the LC-3's single status+data register pair to
// arbitrary byte-addressable MMIO regions, and on the original Rust
// implementation's device vocabulary (_examples/original_source's
// devices/event_bus.rs and devices/async_device.rs).
package device

import (
	"context"
	"fmt"

	"github.com/smoynes/rv64/internal/log"
)

// ID names a device for event-bus routing.
type ID uint32

// Driver is a synchronous memory-mapped device: every access is serviced
// immediately, on the calling hart's goroutine, exactly like the teacher's
// Driver/Device pair.
type Driver interface {
	ReadBytes(offset uint64, size int) ([]byte, error)
	WriteBytes(offset uint64, data []byte) error
}

// EventType enumerates what a device event reports. Only register writes
// are modeled, matching the original implementation's DeviceEventType.
type EventType int

const RegisterWrite EventType = 0

// Event is a notification that something happened to a device, broadcast
// over the Bus so other devices (or the VM's interrupt plumbing) can react.
type Event struct {
	Source ID
	Type   EventType
	Offset uint64
}

// Bus fans Events out to per-device subscriber channels, generalizing the
// original implementation's single mpsc::Sender-per-device distributor into
// Go channels.
type Bus struct {
	log         *log.Logger
	subscribers map[ID]chan Event
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{
		log:         log.DefaultLogger(),
		subscribers: make(map[ID]chan Event),
	}
}

// Subscribe registers id to receive events published to it, returning the
// channel events will arrive on. The channel is buffered so Publish never
// blocks the publishing hart on a slow subscriber.
func (b *Bus) Subscribe(id ID) <-chan Event {
	ch := make(chan Event, 16)
	b.subscribers[id] = ch

	return ch
}

// Publish delivers ev to its target device's subscriber channel, dropping
// the event with a log line if the subscriber's buffer is full rather than
// blocking (devices are advisory consumers of these notifications).
func (b *Bus) Publish(target ID, ev Event) {
	ch, ok := b.subscribers[target]
	if !ok {
		return
	}

	select {
	case ch <- ev:
	default:
		b.log.Warn("device: dropped event, subscriber backlog full", "target", target)
	}
}

// Disposition is what an async device's Update wants the run loop to do
// next, mirroring the original implementation's AsyncDeviceUpdateResult.
type Disposition int

const (
	// Continue runs Update again immediately.
	Continue Disposition = iota
	// WaitForEvent blocks until an event arrives on the device's bus
	// subscription.
	WaitForEvent
	// Stop ends the device's run loop.
	Stop
)

// Async is a device that runs its own update loop on a dedicated goroutine,
// reacting to timeouts and bus events rather than servicing synchronous
// register accesses inline (generalizing the original implementation's
// AsyncDevice trait).
type Async interface {
	// Update is invoked once at startup (ev is the zero Event), again
	// whenever a subscribed event arrives, and is expected to return
	// promptly so the run loop can re-evaluate its disposition.
	Update(ev Event) (Disposition, error)
}

// Run drives an Async device's loop until ctx is canceled, Stop is
// returned, or Update errors. Callers typically invoke this in its own
// goroutine at VM startup for each async device.
func Run(ctx context.Context, id ID, bus *Bus, dev Async) error {
	events := bus.Subscribe(id)

	disp, err := dev.Update(Event{})
	if err != nil {
		return fmt.Errorf("device %d: initial update: %w", id, err)
	}

	for {
		switch disp {
		case Stop:
			return nil
		case Continue:
			if err := ctx.Err(); err != nil {
				return err
			}

			disp, err = dev.Update(Event{})
		case WaitForEvent:
			select {
			case <-ctx.Done():
				return ctx.Err()
			case ev := <-events:
				disp, err = dev.Update(ev)
			}
		}

		if err != nil {
			return fmt.Errorf("device %d: update: %w", id, err)
		}
	}
}
