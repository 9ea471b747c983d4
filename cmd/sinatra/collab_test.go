package main

import (
	"slices"
	"testing"
)

func TestParseChords(t *testing.T) {
	for in, want := range map[string][]string{
		"C,Am,F,G":       {"C", "Am", "F", "G"},
		" C, Am  F\tG7 ": {"C", "Am", "F", "G7"},
		",,":             nil,
	} {
		if got := parseChords(in); !slices.Equal(got, want) {
			t.Errorf("parseChords(%q) = %q, want %q", in, got, want)
		}
	}
}
