package parallelfor

import (
	"errors"
	"sync/atomic"
	"testing"
)

func TestRowsCoversEveryRow(t *testing.T) {
	const height = 37
	var seen [height]int32
	Rows(height, func(yStart, yEnd int) {
		for y := yStart; y < yEnd; y++ {
			atomic.AddInt32(&seen[y], 1)
		}
	})
	for y, count := range seen {
		if count != 1 {
			t.Errorf("row %d visited %d times, want 1", y, count)
		}
	}
}

func TestRowsZeroHeightNoop(t *testing.T) {
	called := false
	Rows(0, func(int, int) { called = true })
	if called {
		t.Error("Rows must not invoke fn for zero height")
	}
}

func TestRowsErrPropagatesFirstError(t *testing.T) {
	want := errors.New("boom")
	err := RowsErr(16, func(yStart, yEnd int) error {
		if yStart == 0 {
			return want
		}
		return nil
	})
	if !errors.Is(err, want) {
		t.Errorf("RowsErr = %v, want %v", err, want)
	}
}

func TestRowsErrNilWhenNoErrors(t *testing.T) {
	err := RowsErr(16, func(int, int) error { return nil })
	if err != nil {
		t.Errorf("RowsErr = %v, want nil", err)
	}
}
