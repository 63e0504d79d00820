package device

import (
	"context"
	"testing"
	"time"

	"github.com/smoynes/rv64/internal/csr"
)

func TestBusPublishSubscribe(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe(1)

	bus.Publish(1, Event{Source: 1, Type: RegisterWrite, Offset: 0x10})

	select {
	case ev := <-ch:
		if ev.Offset != 0x10 {
			t.Errorf("offset: want 0x10, got %#x", ev.Offset)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a published event, got none")
	}
}

func TestBusPublishToUnsubscribedIDIsANoop(t *testing.T) {
	bus := NewBus()
	bus.Publish(99, Event{}) // must not panic or block
}

type countingAsync struct {
	updates int
	stopAt  int
}

func (d *countingAsync) Update(ev Event) (Disposition, error) {
	d.updates++
	if d.updates >= d.stopAt {
		return Stop, nil
	}

	return Continue, nil
}

func TestRunStopsOnDisposition(t *testing.T) {
	bus := NewBus()
	dev := &countingAsync{stopAt: 3}

	err := Run(context.Background(), 1, bus, dev)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if dev.updates != 3 {
		t.Errorf("updates: want 3, got %d", dev.updates)
	}
}

type waitingAsync struct {
	seen []Event
}

func (d *waitingAsync) Update(ev Event) (Disposition, error) {
	d.seen = append(d.seen, ev)
	if len(d.seen) == 1 {
		return WaitForEvent, nil
	}

	return Stop, nil
}

func TestRunWaitsForBusEvent(t *testing.T) {
	bus := NewBus()
	dev := &waitingAsync{}

	done := make(chan error, 1)

	go func() { done <- Run(context.Background(), 5, bus, dev) }()

	// Give Run time to reach WaitForEvent and subscribe.
	time.Sleep(10 * time.Millisecond)
	bus.Publish(5, Event{Source: 1, Type: RegisterWrite, Offset: 4})

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not complete after the event was published")
	}

	if len(dev.seen) != 2 {
		t.Fatalf("expected 2 Update calls (initial + event), got %d", len(dev.seen))
	}

	if dev.seen[1].Offset != 4 {
		t.Errorf("second update's event offset: want 4, got %d", dev.seen[1].Offset)
	}
}

func TestTimerMtimeAndMtimecmp(t *testing.T) {
	mip := []*csr.InterruptBits{{}}
	timer := NewTimer([]uint64{0}, mip)

	if err := timer.WriteBytes(0, leBytes(0, 8)); err != nil {
		t.Fatalf("reset mtime: %v", err)
	}

	if err := timer.WriteBytes(8, leBytes(1, 8)); err != nil { // arm for 1us from epoch
		t.Fatalf("write mtimecmp: %v", err)
	}

	time.Sleep(2 * time.Millisecond)
	timer.Tick()

	if mip[0].Load()&(1<<csr.InterruptMachineTimer) == 0 {
		t.Error("expected MTIP set once mtime passed mtimecmp")
	}
}

func TestSoftwareInterruptOddByteSetsEvenClears(t *testing.T) {
	mip := []*csr.InterruptBits{{}}
	swi := NewSoftwareInterrupt(csr.InterruptMachineSoftware, mip)

	if err := swi.WriteBytes(0, []byte{1, 0, 0, 0, 0, 0, 0, 0}); err != nil {
		t.Fatalf("WriteBytes (set): %v", err)
	}

	if mip[0].Load()&(1<<csr.InterruptMachineSoftware) == 0 {
		t.Error("expected MSIP set by odd low byte")
	}

	if err := swi.WriteBytes(0, []byte{0, 0, 0, 0, 0, 0, 0, 0}); err != nil {
		t.Fatalf("WriteBytes (clear): %v", err)
	}

	if mip[0].Load()&(1<<csr.InterruptMachineSoftware) != 0 {
		t.Error("expected MSIP cleared by even low byte")
	}
}
