package main

import (
	"testing"
	"unicode/utf8"
)

func TestTruncate(t *testing.T) {
	cases := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"short_untouched", "a quiet day", 60, "a quiet day"},
		{"exact_untouched", "abcde", 5, "abcde"},
		{"cut_with_ellipsis", "abcdef", 5, "abcd…"},
		{"multibyte_kept_valid", "héllo wörld, this is längér", 10, "héllo wör…"},
		{"cjk", "今日はとても良い一日だった", 5, "今日はと…"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := truncate(tc.in, tc.n)
			if got != tc.want {
				t.Fatalf("truncate(%q, %d)=%q, want %q", tc.in, tc.n, got, tc.want)
			}
			if !utf8.ValidString(got) {
				t.Fatalf("truncate produced invalid UTF-8: %q", got)
			}
		})
	}
}
