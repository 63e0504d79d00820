package vmstate

import (
	"errors"
	"testing"

	"github.com/smoynes/rv64/internal/addr"
	"github.com/smoynes/rv64/internal/device"
)

func writeWord(t *testing.T, vm *VM, a addr.Address, word uint32) {
	t.Helper()

	data := []byte{byte(word), byte(word >> 8), byte(word >> 16), byte(word >> 24)}
	if err := vm.Mem.WritePhys(a, data); err != nil {
		t.Fatalf("seed instruction at %s: %v", a, err)
	}
}

func TestNewDefaultsSingleHartAtRAMBase(t *testing.T) {
	vm, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if len(vm.Harts) != 1 {
		t.Fatalf("hart count: want 1, got %d", len(vm.Harts))
	}

	if vm.Harts[0].PC != DefaultRAMBase {
		t.Errorf("pc: want %s, got %s", DefaultRAMBase, vm.Harts[0].PC)
	}
}

func TestNewRejectsZeroHarts(t *testing.T) {
	_, err := New(WithHartCount(0))
	if err == nil {
		t.Fatal("expected an error for hart count 0")
	}
}

func TestStepExecutesOneInstructionPerHart(t *testing.T) {
	vm, err := New(WithHartCount(2))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// addi x1, x0, 1, for both harts (they share the image region in this test).
	writeWord(t, vm, DefaultRAMBase, 0x00100093)

	if err := vm.Step(); err != nil {
		t.Fatalf("Step: %v", err)
	}

	for i, h := range vm.Harts {
		if h.Int.Get(1) != 1 {
			t.Errorf("hart %d: x1 want 1, got %d", i, h.Int.Get(1))
		}

		if h.PC != DefaultRAMBase+4 {
			t.Errorf("hart %d: pc want %s, got %s", i, DefaultRAMBase+4, h.PC)
		}
	}
}

func TestStepReturnsErrHaltedWhenEveryHartWaits(t *testing.T) {
	vm, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// wfi, with no interrupt enabled anywhere: every hart parks immediately.
	writeWord(t, vm, DefaultRAMBase, 0x10500073)

	err = vm.Step()
	if !errors.Is(err, ErrHalted) {
		t.Fatalf("want ErrHalted, got %v", err)
	}
}

func TestRunStopsAtErrHalted(t *testing.T) {
	vm, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	writeWord(t, vm, DefaultRAMBase, 0x10500073) // wfi

	err = vm.Run()
	if !errors.Is(err, ErrHalted) {
		t.Fatalf("want ErrHalted, got %v", err)
	}
}

func TestStepHartUntilTarget(t *testing.T) {
	vm, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	writeWord(t, vm, DefaultRAMBase, 0x00100093)   // addi x1, x0, 1
	writeWord(t, vm, DefaultRAMBase+4, 0x00200113) // addi x2, x0, 2

	steps, err := vm.StepHartUntil(0, DefaultRAMBase+4, 0)
	if err != nil {
		t.Fatalf("StepHartUntil: %v", err)
	}

	if steps != 1 {
		t.Errorf("steps: want 1, got %d", steps)
	}

	if vm.Harts[0].Int.Get(1) != 1 {
		t.Errorf("x1: want 1, got %d", vm.Harts[0].Int.Get(1))
	}
}

func TestStepHartUntilRespectsLimit(t *testing.T) {
	vm, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	writeWord(t, vm, DefaultRAMBase, 0x00100093) // addi x1, x0, 1 (the zero word after it traps to mtvec 0, so PC never reaches target)

	_, err = vm.StepHartUntil(0, DefaultRAMBase+100, 2)
	if !errors.Is(err, ErrStepLimit) {
		t.Fatalf("want ErrStepLimit, got %v", err)
	}
}

func TestMappedDevicesPublishRegisterWriteEvents(t *testing.T) {
	vm, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	events := vm.Bus.Subscribe(idMSI)

	if err := vm.Mem.WritePhys(msipBase, []byte{1, 0, 0, 0, 0, 0, 0, 0}); err != nil {
		t.Fatalf("write msip: %v", err)
	}

	select {
	case ev := <-events:
		if ev.Type != device.RegisterWrite {
			t.Errorf("event type: want RegisterWrite, got %v", ev.Type)
		}
	default:
		t.Fatal("expected a RegisterWrite event after the device write")
	}
}

func TestGraphicsModeMapsVGADevice(t *testing.T) {
	vm, err := New(WithGraphicsMode(GraphicsVGAText, 0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if vm.VGA == nil {
		t.Fatal("expected a VGA device when GraphicsVGAText is requested")
	}

	if err := vm.Mem.WritePhys(DefaultVGAAddress, []byte{'X'}); err != nil {
		t.Fatalf("write vga: %v", err)
	}

	rendered := vm.VGA.Render()
	if rendered[0] != 'X' {
		t.Errorf("rendered[0]: want 'X', got %q", rendered[0])
	}
}

func TestAddBreakpointStopsStepHartUntil(t *testing.T) {
	vm, err := New(WithBreakpoints())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	writeWord(t, vm, DefaultRAMBase, 0x00100093)   // addi x1, x0, 1
	writeWord(t, vm, DefaultRAMBase+4, 0x00200113) // addi x2, x0, 2

	vm.AddBreakpoint(DefaultRAMBase + 4)

	steps, err := vm.StepHartUntil(0, DefaultRAMBase+1000, 0)
	if err != nil {
		t.Fatalf("StepHartUntil: %v", err)
	}

	if steps != 1 {
		t.Errorf("steps: want 1 (stopped at breakpoint), got %d", steps)
	}
}
