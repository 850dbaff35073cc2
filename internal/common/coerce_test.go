package common

import (
	"encoding/json"
	"math"
	"testing"
)

func TestIntFrom(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want int
		ok   bool
	}{
		{name: "float", in: float64(3), want: 3, ok: true},
		{name: "fraction truncates", in: 2.9, want: 2, ok: true},
		{name: "int64", in: int64(7), want: 7, ok: true},
		{name: "json number", in: json.Number("12"), want: 12, ok: true},
		{name: "numeric string", in: " 5 ", want: 5, ok: true},
		{name: "garbage string", in: "abc", ok: false},
		{name: "nil", in: nil, ok: false},
		{name: "bool", in: true, ok: false},
		{name: "nan", in: math.NaN(), ok: false},
		{name: "nan string", in: "NaN", ok: false},
		{name: "inf", in: math.Inf(1), ok: false},
		{name: "overflow", in: 1e12, ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := IntFrom(tt.in)
			if ok != tt.ok {
				t.Fatalf("IntFrom(%v) ok = %v, want %v", tt.in, ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Fatalf("IntFrom(%v) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestIntOrDefault(t *testing.T) {
	if got := IntOrDefault("abc", 10); got != 10 {
		t.Fatalf("expected default, got %d", got)
	}
	if got := IntOrDefault(4.0, 10); got != 4 {
		t.Fatalf("expected 4, got %d", got)
	}
}

func TestBoolFrom(t *testing.T) {
	tests := []struct {
		in   any
		want bool
		ok   bool
	}{
		{true, true, true},
		{false, false, true},
		{"true", true, true},
		{"f", false, true},
		{float64(1), true, true},
		{float64(0), false, true},
		{float64(2), false, false},
		{"maybe", false, false},
		{nil, false, false},
	}
	for _, tt := range tests {
		got, ok := BoolFrom(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Fatalf("BoolFrom(%v) = (%v, %v), want (%v, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
	if !BoolOrDefault("yes", false) {
		t.Fatal("expected yes to coerce to true")
	}
	if BoolOrDefault([]int{1}, false) {
		t.Fatal("expected slice to fall back to default")
	}
}
