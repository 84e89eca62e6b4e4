package logging

import (
	"path/filepath"
	"testing"
)

func TestCrashHandlerWritesDump(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "crashes")
	h := NewCrashHandler(&CrashHandlerConfig{CrashDir: dir, Component: "ftmd-test"})

	h.Recover(func() { panic("boom") })

	reports, err := h.GetCrashReports()
	if err != nil {
		t.Fatal(err)
	}
	if len(reports) != 1 {
		t.Fatalf("expected 1 crash report, got %d", len(reports))
	}
	if reports[0].PanicValue != "boom" {
		t.Errorf("got %q, want boom", reports[0].PanicValue)
	}
}

func TestRecoverGoroutineDoesNotPropagate(t *testing.T) {
	h := NewCrashHandler(&CrashHandlerConfig{Component: "ftmd-test"})
	done := make(chan struct{})

	go func() {
		defer h.RecoverGoroutine()
		defer close(done)
		panic("goroutine panic")
	}()
	<-done // reaching here means the panic did not crash the test process
}
