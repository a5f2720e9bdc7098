package textutil

import (
	"math"
	"testing"
)

func TestRatio(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"", "", 1},
		{"abc", "", 0},
		{"charizard", "charizard", 1},
		{"abcd", "bcde", 0.75},
		{"charizrd", "charizard", 16.0 / 17.0},
		{"pikachu", "bulbasaur", 4.0 / 16.0},
	}
	for _, tt := range tests {
		got := Ratio(tt.a, tt.b)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Ratio(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestRatioSymmetricBounds(t *testing.T) {
	pairs := [][2]string{{"mewtwo", "mew"}, {"Flabébé", "flabebe"}, {"x", "yz"}}
	for _, p := range pairs {
		ab, ba := Ratio(p[0], p[1]), Ratio(p[1], p[0])
		if ab < 0 || ab > 1 || ba < 0 || ba > 1 {
			t.Fatalf("ratio out of range for %v: %v %v", p, ab, ba)
		}
	}
}

func TestLowerAndFold(t *testing.T) {
	if got := Lower("  PIKACHU V "); got != "pikachu v" {
		t.Fatalf("Lower = %q", got)
	}
	if got := FoldAccents("Pokémon Flabébé"); got != "Pokemon Flabebe" {
		t.Fatalf("FoldAccents = %q", got)
	}
}

func TestClean(t *testing.T) {
	tests := map[string]string{
		"  Charizard ★ ":   "Charizard",
		"Farfetch'd!!":     "Farfetch'd",
		"Mr. Mime | 60 HP": "Mr. Mime  60 HP",
		"Pokémon":          "Pokemon",
		"@@##":             "",
		"Ho-Oh\t":          "Ho-Oh",
	}
	for in, want := range tests {
		if got := Clean(in); got != want {
			t.Errorf("Clean(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAlphaRatio(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"", 0},
		{"abc", 1},
		{"Xyz123", 0.5},
		{"HP 60", 0.4},
	}
	for _, tt := range tests {
		if got := AlphaRatio(tt.in); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("AlphaRatio(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestContainsEither(t *testing.T) {
	if !ContainsEither("pikachu", "pikachu v") || !ContainsEither("pikachu v", "pika") {
		t.Fatal("expected containment")
	}
	if ContainsEither("", "pikachu") || ContainsEither("pikachu", "") {
		t.Fatal("empty strings must not count as contained")
	}
}
