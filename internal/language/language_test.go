package language

import (
	"testing"
)

func TestToISO2(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		// 2-letter codes pass through
		{"en", "en"},
		{"EN", "en"},
		{"de", "de"},
		// 3-letter codes convert
		{"eng", "en"},
		{"deu", "de"},
		{"ger", "de"},
		{"fre", "fr"},
		{"dut", "nl"},
		// Word forms, English and native
		{"english", "en"},
		{"German", "de"},
		{"Deutsch", "de"},
		{"Englisch", "en"},
		{"Français", "fr"},
		{"Español", "es"},
		// Locale tags
		{"de-DE", "de"},
		{"en_US", "en"},
		{"en-GB", "en"},
		// Unknown 2-letter passes through
		{"xy", "xy"},
		// Unknown 3-letter returns empty
		{"xyz", ""},
		// Empty
		{"", ""},
		{" ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := ToISO2(tt.input)
			if result != tt.expected {
				t.Errorf("ToISO2(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestToISO3(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"en", "eng"},
		{"de", "deu"},
		{"german", "deu"},
		{"eng", "eng"},
		{"xyz", "xyz"}, // unknown 3-letter passes through
		{"xy", "und"},  // unknown 2-letter becomes undefined
		{"", "und"},    // empty
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := ToISO3(tt.input)
			if result != tt.expected {
				t.Errorf("ToISO3(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"de", "German"},
		{"Deutsch", "German"},
		{"eng", "English"},
		{"en-US", "English"},
		{"Klingon", "Klingon"},
		{"  ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := DisplayName(tt.input); got != tt.expected {
				t.Errorf("DisplayName(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestEqual(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"German", "Deutsch", true},
		{"de", "ger", true},
		{"English", "de", false},
		{"Klingon", "klingon", true},
		{"", "", false},
		{"Klingon", "English", false},
	}
	for _, tt := range tests {
		if got := Equal(tt.a, tt.b); got != tt.want {
			t.Errorf("Equal(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestIsGerman(t *testing.T) {
	if !IsGerman("Deutsch") || !IsGerman("de-AT") {
		t.Fatal("expected German variants to be recognized")
	}
	if IsGerman("English") {
		t.Fatal("English reported as German")
	}
}

func TestNormalizeList(t *testing.T) {
	got := NormalizeList([]string{"English", "en", " de ", "", "ger", "xx"})
	want := []string{"en", "de", "xx"}
	if len(got) != len(want) {
		t.Fatalf("NormalizeList() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("NormalizeList()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
