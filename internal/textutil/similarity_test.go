package textutil

import (
	"math"
	"testing"
)

func TestCosineSimilarityNil(t *testing.T) {
	tests := []struct {
		name string
		a    *Fingerprint
		b    *Fingerprint
	}{
		{"both nil", nil, nil},
		{"a nil", nil, NewFingerprint("hello world")},
		{"b nil", NewFingerprint("hello world"), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CosineSimilarity(tt.a, tt.b); got != 0 {
				t.Errorf("CosineSimilarity() = %v, want 0", got)
			}
		})
	}
}

func TestCosineSimilarityIdentical(t *testing.T) {
	text := "Der Herr der Ringe: Die Gefährten"
	got := CosineSimilarity(NewFingerprint(text), NewFingerprint(text))
	if math.Abs(got-1.0) > 1e-9 {
		t.Errorf("CosineSimilarity(identical) = %v, want 1.0", got)
	}
}

func TestCosineSimilarityIgnoresAccentsAndCase(t *testing.T) {
	a := NewFingerprint("Die Gefährten")
	b := NewFingerprint("die GEFAHRTEN")
	if got := CosineSimilarity(a, b); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("CosineSimilarity() = %v, want 1.0", got)
	}
}

func TestFold(t *testing.T) {
	tests := map[string]string{
		"Ungekürzt":     "ungekurzt",
		"  Straße ":     "  strasse ",
		"Éric-Emmanuel": "eric-emmanuel",
		"":              "",
	}
	for in, want := range tests {
		if got := Fold(in); got != want {
			t.Errorf("Fold(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTokenize(t *testing.T) {
	got := Tokenize("Harry Potter & the Philosopher's Stone (Book 1)")
	want := []string{"harry", "potter", "the", "philosopher", "s", "stone", "book", "1"}
	if len(got) != len(want) {
		t.Fatalf("Tokenize() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Tokenize()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDice(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
		want float64
	}{
		{"identical", []string{"dune", "messiah"}, []string{"messiah", "dune"}, 1},
		{"half", []string{"dune", "messiah"}, []string{"dune", "children"}, 0.5},
		{"disjoint", []string{"dune"}, []string{"foundation"}, 0},
		{"empty", nil, []string{"dune"}, 0},
		{"duplicates ignored", []string{"a", "a", "b"}, []string{"a", "b"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Dice(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Dice() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSharedTokens(t *testing.T) {
	if got := SharedTokens([]string{"j", "r", "r", "tolkien"}, []string{"tolkien", "j"}); got != 2 {
		t.Fatalf("SharedTokens() = %d, want 2", got)
	}
}
