package core

import (
	"encoding/json"
	"testing"
)

func TestParseDecimalToCents(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"1,23", 123, true},
		{"0.01", 1, true},
		{"1.005", 101, true}, // half-up rounding
		{" 2.50 ", 250, true},
		{"-1", 0, false},
		{"0", 0, false},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseDecimalToCents(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}

func TestNormalizeAmount(t *testing.T) {
	got, err := NormalizeAmount("12,5")
	if err != nil || got != "12.50" {
		t.Fatalf("NormalizeAmount = %q, %v", got, err)
	}
	if _, err := NormalizeAmount("twelve"); err == nil {
		t.Fatal("expected error")
	}
}

func TestMoneyString(t *testing.T) {
	cases := map[int64]string{
		0:        "€0,00",
		5:        "€0,05",
		123456:   "€1.234,56",
		-250:     "-€2,50",
		10000000: "€100.000,00",
	}
	for cents, want := range cases {
		if got := (Money{Cents: cents}).String(); got != want {
			t.Errorf("Money{%d}.String() = %q, want %q", cents, got, want)
		}
	}
}

func TestMoneyUnmarshalJSON(t *testing.T) {
	cases := []struct {
		in   string
		want int64
		ok   bool
	}{
		{`12.5`, 1250, true},
		{`"12.50"`, 1250, true},
		{`"0.00"`, 0, true},
		{`0`, 0, true},
		{`null`, 0, true},
		{`"-3.10"`, -310, true},
		{`"abc"`, 0, false},
	}
	for _, tc := range cases {
		var m Money
		err := json.Unmarshal([]byte(tc.in), &m)
		if tc.ok {
			if err != nil || m.Cents != tc.want {
				t.Errorf("%s: got %d, %v; want %d", tc.in, m.Cents, err, tc.want)
			}
		} else if err == nil {
			t.Errorf("%s: expected error", tc.in)
		}
	}
}
