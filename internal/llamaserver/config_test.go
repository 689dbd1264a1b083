package llamaserver

import "testing"

func TestLaunchConfigWithDefaults(t *testing.T) {
	lc := LaunchConfig{}.withDefaults()
	if lc.CtxSize != defaultCtxSize {
		t.Errorf("ctx size = %d", lc.CtxSize)
	}
	if lc.BatchSize != defaultBatchSize || lc.UBatchSize != defaultUBatchSize {
		t.Errorf("batch = %d, ubatch = %d", lc.BatchSize, lc.UBatchSize)
	}
	if lc.CompressPosEmb != 1 {
		t.Errorf("compress_pos_emb = %v", lc.CompressPosEmb)
	}
	if lc.MMProjDir != defaultMMProjDir {
		t.Errorf("mmproj dir = %q", lc.MMProjDir)
	}
}

func TestLaunchConfigWithDefaultsKeepsExplicit(t *testing.T) {
	in := LaunchConfig{CtxSize: 2048, BatchSize: 128, UBatchSize: 64, CompressPosEmb: 2, MMProjDir: "/x"}
	lc := in.withDefaults()
	if lc != in {
		t.Fatalf("explicit values changed: %+v", lc)
	}
}
