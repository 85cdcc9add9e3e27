package downloader

import (
	"errors"
	"testing"
)

func TestMarkReported(t *testing.T) {
	err := wrapCategory(CategoryNetwork, errors.New("boom"))
	if IsReported(err) {
		t.Fatal("unmarked error must not read as reported")
	}

	marked := markReported(err)
	if !IsReported(marked) {
		t.Fatal("marked error must read as reported")
	}
	if !errors.Is(marked, err) {
		t.Fatal("marking must preserve the wrapped error")
	}
	if ExitCode(marked) != 4 {
		t.Fatalf("marking must preserve the category, got exit code %d", ExitCode(marked))
	}

	if markReported(nil) != nil {
		t.Fatal("marking nil must stay nil")
	}
	if IsReported(nil) {
		t.Fatal("nil is not reported")
	}
}

func TestReportFatal(t *testing.T) {
	printer := newPrinter(Options{Quiet: true})
	err := reportFatal(printer, wrapCategory(CategoryFilesystem, errors.New("disk full")))
	if !IsReported(err) {
		t.Fatal("reportFatal must mark the error as reported")
	}
	if ExitCode(err) != 6 {
		t.Fatalf("reportFatal must keep the category, got exit code %d", ExitCode(err))
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, 0},
		{errors.New("plain"), 1},
		{wrapCategory(CategoryInvalidURL, errors.New("x")), 2},
		{wrapCategory(CategoryLogin, errors.New("x")), 3},
		{wrapCategory(CategoryNetwork, errors.New("x")), 4},
		{wrapCategory(CategoryResolution, errors.New("x")), 5},
		{wrapCategory(CategoryFilesystem, errors.New("x")), 6},
	}
	for _, tt := range tests {
		if got := ExitCode(tt.err); got != tt.want {
			t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
