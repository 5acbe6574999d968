package phone

import "testing"

func TestNormalizeE164(t *testing.T) {
	cases := map[string]string{
		"044 668 18 00":    "+41446681800",
		"+41 44 668 18 00": "+41446681800",
		"  ":               "",
		"not a number":     "not a number",
	}

	for in, want := range cases {
		if got := NormalizeE164(in); got != want {
			t.Errorf("NormalizeE164(%q) = %q, want %q", in, got, want)
		}
	}
}
