package regs

import "testing"

func TestIntFileGetSetX0(t *testing.T) {
	var f IntFile

	f.Set(0, 42)

	if got := f.Get(0); got != 0 {
		t.Errorf("x0 must stay hardwired to zero, got %d", got)
	}
}

func TestIntFileGetSet(t *testing.T) {
	var f IntFile

	f.Set(5, -17)

	if got := f.Get(5); got != -17 {
		t.Errorf("x5: want -17, got %d", got)
	}
}

func TestFloatFileF64RoundTrip(t *testing.T) {
	var f FloatFile

	f.SetF64(1, 3.14159)

	if got := f.GetF64(1); got != 3.14159 {
		t.Errorf("f1: want 3.14159, got %v", got)
	}
}

func TestFloatFileF32NaNBoxing(t *testing.T) {
	var f FloatFile

	f.SetF32(2, 1.5)

	if got := f.GetF32(2); got != 1.5 {
		t.Errorf("f2 (single): want 1.5, got %v", got)
	}

	raw := f.Raw(2)
	if raw>>32 != 0xFFFFFFFF {
		t.Errorf("f2: expected NaN-boxed upper bits, got %#x", raw)
	}
}
