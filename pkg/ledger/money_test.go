package ledger

import (
	"errors"
	"testing"
)

func TestParseAmount(test *testing.T) {
	test.Parallel()
	cases := []struct {
		name      string
		input     string
		wantCents AmountCents
		wantErr   error
	}{
		{name: "whole", input: "12", wantCents: 1200},
		{name: "two places", input: " 12.34 ", wantCents: 1234},
		{name: "one place", input: "0.5", wantCents: 50},
		{name: "smallest", input: "0.01", wantCents: 1},
		{name: "zero", input: "0.00", wantCents: 0},
		{name: "three places", input: "1.005", wantErr: ErrInvalidAmount},
		{name: "negative", input: "-1.00", wantErr: ErrInvalidAmount},
		{name: "garbage", input: "ten", wantErr: ErrInvalidAmount},
		{name: "empty", input: "  ", wantErr: ErrInvalidAmount},
		{name: "too large", input: "99999999999999999999", wantErr: ErrInvalidAmount},
	}
	for _, testCase := range cases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			cents, err := ParseAmount(testCase.input)
			if testCase.wantErr != nil {
				if !errors.Is(err, testCase.wantErr) {
					test.Fatalf("expected %v, got %v", testCase.wantErr, err)
				}
				if !errors.Is(err, ErrValidation) {
					test.Fatalf("expected validation class, got %v", err)
				}
				return
			}
			if err != nil {
				test.Fatalf("unexpected error: %v", err)
			}
			if cents != testCase.wantCents {
				test.Fatalf("expected %d, got %d", testCase.wantCents, cents)
			}
		})
	}
}

func TestAmountStringUsesTwoDecimals(test *testing.T) {
	test.Parallel()
	cases := map[AmountCents]string{0: "0.00", 1: "0.01", 48: "0.48", 9000: "90.00", 10000000: "100000.00"}
	for cents, want := range cases {
		if got := cents.String(); got != want {
			test.Fatalf("expected %q for %d, got %q", want, cents, got)
		}
	}
	if got := AmountCents(250).Negated().String(); got != "-2.50" {
		test.Fatalf("expected -2.50, got %q", got)
	}
}

func TestNewPositiveAmountCents(test *testing.T) {
	test.Parallel()
	if _, err := NewPositiveAmountCents(0); !errors.Is(err, ErrInvalidAmount) {
		test.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	value, err := NewPositiveAmountCents(100)
	if err != nil {
		test.Fatalf("unexpected error: %v", err)
	}
	if value != 100 {
		test.Fatalf("expected 100, got %d", value)
	}
}

func TestNewPercent(test *testing.T) {
	test.Parallel()
	for _, raw := range []int64{-1, 101} {
		if _, err := NewPercent(raw); !errors.Is(err, ErrInvalidPercent) {
			test.Fatalf("expected ErrInvalidPercent for %d, got %v", raw, err)
		}
	}
	for _, raw := range []int64{0, 10, 100} {
		if _, err := NewPercent(raw); err != nil {
			test.Fatalf("unexpected error for %d: %v", raw, err)
		}
	}
}

func TestPercentOfRoundsHalfUp(test *testing.T) {
	test.Parallel()
	cases := []struct {
		amount  AmountCents
		percent Percent
		want    AmountCents
	}{
		{amount: 5, percent: 10, want: 1},
		{amount: 4, percent: 10, want: 0},
		{amount: 15, percent: 10, want: 2},
		{amount: 14, percent: 10, want: 1},
		{amount: 10000, percent: 10, want: 1000},
		{amount: 60, percent: 20, want: 12},
		{amount: 999, percent: 100, want: 999},
		{amount: 999, percent: 0, want: 0},
	}
	for _, testCase := range cases {
		if got := percentOf(testCase.amount, testCase.percent); got != testCase.want {
			test.Fatalf("percentOf(%d, %d): expected %d, got %d", testCase.amount, testCase.percent, testCase.want, got)
		}
	}
}
