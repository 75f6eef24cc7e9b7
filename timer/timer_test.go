package timer_test

import (
	"errors"
	"testing"
	"time"

	"github.com/xraph/asyncexec"
	"github.com/xraph/asyncexec/timer"
)

var base = time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

func TestDueDate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		def  timer.Definition
		want time.Time
	}{
		{"date", timer.Date("2026-03-01T09:00:00Z"), time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
		{"date with offset", timer.Date("2026-03-01T09:00:00+02:00"), time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC)},
		{"iso minutes", timer.Duration("PT15M"), base.Add(15 * time.Minute)},
		{"iso days and hours", timer.Duration("P1DT2H"), base.Add(26 * time.Hour)},
		{"iso weeks", timer.Duration("P2W"), base.AddDate(0, 0, 14)},
		{"iso month", timer.Duration("P1M"), time.Date(2026, 2, 15, 10, 0, 0, 0, time.UTC)},
		{"iso fractional seconds", timer.Duration("PT1.5S"), base.Add(1500 * time.Millisecond)},
		{"go duration", timer.Duration("90s"), base.Add(90 * time.Second)},
		{"iso cycle", timer.Cycle("R3/PT10M"), base.Add(10 * time.Minute)},
		{"iso cycle future start", timer.Cycle("R/2026-02-01T00:00:00Z/P1D"), time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)},
		{"iso cycle past start", timer.Cycle("R/2025-02-01T00:00:00Z/PT1H"), base.Add(time.Hour)},
		{"cron", timer.Cycle("0 12 * * *"), time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)},
		{"cron descriptor", timer.Cycle("@every 30s"), base.Add(30 * time.Second)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.def.DueDate(base)
			if err != nil {
				t.Fatalf("DueDate: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("DueDate = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestInvalidDefinitions(t *testing.T) {
	t.Parallel()

	tests := []timer.Definition{
		timer.Date("tomorrow"),
		timer.Duration("P"),
		timer.Duration("PT"),
		timer.Duration("P1DT"),
		timer.Duration("PT0S"),
		timer.Duration("-5s"),
		timer.Duration("soon"),
		timer.Cycle("R0/PT1M"),
		timer.Cycle("Rx/PT1M"),
		timer.Cycle("R3"),
		timer.Cycle("R3/bad/PT1M"),
		timer.Cycle("61 * * * *"),
		{Type: "interval", Expression: "PT1M"},
	}

	for _, def := range tests {
		t.Run(string(def.Type)+" "+def.Expression, func(t *testing.T) {
			err := def.Validate()
			if !errors.Is(err, asyncexec.ErrInvalidTimer) {
				t.Errorf("Validate() = %v, want ErrInvalidTimer", err)
			}
		})
	}
}

func TestRepetition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		def        timer.Definition
		repeating  bool
		iterations int
	}{
		{timer.Cycle("R3/PT10M"), true, 3},
		{timer.Cycle("R1/PT10M"), false, 1},
		{timer.Cycle("R/PT10M"), true, 0},
		{timer.Cycle("*/5 * * * *"), true, 0},
		{timer.Duration("PT10M"), false, 0},
		{timer.Date("2026-03-01T09:00:00Z"), false, 0},
	}

	for _, tt := range tests {
		if got := tt.def.Repeating(); got != tt.repeating {
			t.Errorf("%s Repeating = %v, want %v", tt.def.Expression, got, tt.repeating)
		}
		if got := tt.def.Iterations(); got != tt.iterations {
			t.Errorf("%s Iterations = %d, want %d", tt.def.Expression, got, tt.iterations)
		}
	}
}

func TestNext(t *testing.T) {
	t.Parallel()

	next, ok, err := timer.Next("R/PT1H", base, nil)
	if err != nil || !ok {
		t.Fatalf("Next: ok=%v err=%v", ok, err)
	}
	if !next.Equal(base.Add(time.Hour)) {
		t.Errorf("Next = %s, want %s", next, base.Add(time.Hour))
	}

	end := base.Add(30 * time.Minute)
	if _, ok, err := timer.Next("R/PT1H", base, &end); err != nil || ok {
		t.Errorf("Next past end date: ok=%v err=%v, want ok=false", ok, err)
	}

	next, ok, err = timer.Next("0 * * * *", base, nil)
	if err != nil || !ok {
		t.Fatalf("Next cron: ok=%v err=%v", ok, err)
	}
	if !next.Equal(base.Add(time.Hour)) {
		t.Errorf("Next cron = %s, want %s", next, base.Add(time.Hour))
	}

	if _, _, err := timer.Next("R/never", base, nil); !errors.Is(err, asyncexec.ErrInvalidTimer) {
		t.Errorf("Next invalid = %v, want ErrInvalidTimer", err)
	}
}
