package domain

import (
	"errors"
	"testing"
	"time"
)

func TestParseWeekdaySet(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		expr string
		want string
	}{
		{name: "default work week", expr: "", want: "mon,tue,wed,thu,fri"},
		{name: "range", expr: "mon-fri", want: "mon,tue,wed,thu,fri"},
		{name: "list", expr: "mon,tue,thu", want: "mon,tue,thu"},
		{name: "mixed", expr: "mon-wed,fri", want: "mon,tue,wed,fri"},
		{name: "wrapping range", expr: "fri-mon", want: "sun,mon,fri,sat"},
		{name: "full names", expr: "monday,thursday", want: "mon,thu"},
		{name: "case insensitive", expr: "Mon-Fri", want: "mon,tue,wed,thu,fri"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			set, err := ParseWeekdaySet(tt.expr)
			if err != nil {
				t.Fatalf("ParseWeekdaySet(%q): %v", tt.expr, err)
			}
			if got := set.String(); got != tt.want {
				t.Fatalf("set = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseWeekdaySetInvalid(t *testing.T) {
	t.Parallel()
	for _, expr := range []string{"funday", "mon-funday", ","} {
		_, err := ParseWeekdaySet(expr)
		if !errors.Is(err, ErrUnparseableDays) {
			t.Fatalf("ParseWeekdaySet(%q) err = %v, want ErrUnparseableDays", expr, err)
		}
	}
}

func TestWeekdaySetShift(t *testing.T) {
	t.Parallel()
	set := WeekdaySet(0).With(time.Monday).With(time.Friday)

	back := set.Shift(-1)
	if !back.Has(time.Sunday) || !back.Has(time.Thursday) || back.Has(time.Monday) {
		t.Fatalf("Shift(-1) = %v", back)
	}
	fwd := set.Shift(1)
	if !fwd.Has(time.Tuesday) || !fwd.Has(time.Saturday) {
		t.Fatalf("Shift(1) = %v", fwd)
	}
	if set.Shift(0) != set {
		t.Fatal("Shift(0) must be identity")
	}
}
