package services

import "testing"

func TestProfileInitial(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"ascii", "grace", "G"},
		{"leading_space", "  ada", "A"},
		{"empty", "", ""},
		{"blank", "   ", ""},
		{"multibyte", "Édouard", "É"},
		{"cjk", "美咲", "美"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := profileInitial(tc.in); got != tc.want {
				t.Fatalf("profileInitial(%q)=%q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestParseMoodColour(t *testing.T) {
	if _, err := parseMoodColour("#336699"); err != nil {
		t.Fatalf("valid colour rejected: %v", err)
	}
	if _, err := parseMoodColour("336699"); err != nil {
		t.Fatalf("hash prefix should be optional: %v", err)
	}
	for _, bad := range []string{"", "#33669", "#GGGGGG", "blue"} {
		if _, err := parseMoodColour(bad); err == nil {
			t.Fatalf("parseMoodColour(%q) accepted invalid colour", bad)
		}
	}
}
