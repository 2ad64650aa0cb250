package qfixed

import "testing"

func TestX20RoundTrip(t *testing.T) {
	for _, v := range []float32{0, 1, -1, 3.5, -3.5, 639.999} {
		got := FromFloat20(v).Float()
		if diff := got - v; diff > 1e-3 || diff < -1e-3 {
			t.Errorf("FromFloat20(%v).Float() = %v, want ~%v", v, got, v)
		}
	}
}

func TestX20Int(t *testing.T) {
	// +0xFFFFF bias used by the edge emitter should round a whole-pixel
	// float up to exactly that pixel once shifted back down.
	x := FromFloat20(10.0) + 0xFFFFF
	if got := x.Int(); got != 10 {
		t.Errorf("biased X20(10.0).Int() = %d, want 10", got)
	}
}

func TestTex16IntFrac(t *testing.T) {
	tv := FromFloat16(4.25)
	if got := tv.Int(); got != 4 {
		t.Errorf("Int() = %d, want 4", got)
	}
	if frac := tv.Frac(); frac < 16000 || frac > 16500 {
		t.Errorf("Frac() = %d, want ~16384", frac)
	}
}

func TestLight8(t *testing.T) {
	lv := FromFloat8(2.5)
	if got := lv.Int(); got != 2 {
		t.Errorf("Int() = %d, want 2", got)
	}
}
