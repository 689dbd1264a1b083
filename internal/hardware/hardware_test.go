package hardware

import "testing"

func TestDetect_NeverFails(t *testing.T) {
	info := Detect()
	if info.LogicalCores <= 0 {
		t.Fatalf("expected logical cores > 0, got %d", info.LogicalCores)
	}
	if info.TotalRAMMB <= 0 {
		t.Fatalf("expected total RAM > 0, got %d", info.TotalRAMMB)
	}
	// VRAM only meaningful when a GPU was found.
	if !info.HasGPU && info.VRAMMB != 0 {
		t.Fatalf("VRAM reported without GPU: %+v", info)
	}
}
