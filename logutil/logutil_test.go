package logutil

import "testing"

func TestRedactKey(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", "********"},
		{"short", "********"},
		{"sk-or-v1-abcdef1234", "sk-o...1234"},
	}
	for _, tc := range cases {
		if got := RedactKey(tc.in); got != tc.want {
			t.Errorf("RedactKey(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
