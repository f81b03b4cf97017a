package main

import (
	"strings"
	"testing"
)

func TestScanCmd_ReportsTimingsAndDeviation(t *testing.T) {
	out, err := execute(t, "scan", "--length", "300", "--channels", "3", "--batch", "2",
		"--runs", "2", "--sequential", "--scan-block-size", "16")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}

	for _, want := range []string{"shape: [2 300 3]", "block_size: 16", "best_ms:", "sequential_ms:", "max_abs_diff:"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestScanCmd_RejectsEmptyShape(t *testing.T) {
	if _, err := execute(t, "scan", "--length", "0"); err == nil {
		t.Fatal("expected error for length 0")
	}
}

func TestCheckCmd_Passes(t *testing.T) {
	out, err := execute(t, "check", "--workers", "2")
	if err != nil {
		t.Fatalf("check: %v\n%s", err, out)
	}

	if !strings.Contains(out, "checks passed") {
		t.Errorf("output missing summary:\n%s", out)
	}
}
