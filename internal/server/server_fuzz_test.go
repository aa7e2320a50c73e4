package server

import (
	"strconv"
	"testing"
)

func FuzzParseAppID(f *testing.F) {
	f.Add("1")
	f.Add("0")
	f.Add("")
	f.Add(" 42 ")
	f.Add("4294967295")
	f.Add("4294967296")
	f.Add("-1")
	f.Add("1e3")
	f.Add("0x10")

	f.Fuzz(func(t *testing.T, s string) {
		id, err := parseAppID(s)
		if err != nil {
			if id != 0 {
				t.Fatalf("error with non-zero id for %q", s)
			}
			return
		}
		if id == 0 {
			t.Fatalf("zero id accepted for %q", s)
		}
		again, err := parseAppID(strconv.FormatUint(uint64(id), 10))
		if err != nil || again != id {
			t.Fatalf("round trip of %q: %d %v", s, again, err)
		}
	})
}

func FuzzSanitizeBase(f *testing.F) {
	for _, s := range []string{"", "/", "api", "/api/", " /v1// ", "//"} {
		f.Add(s)
	}
	f.Fuzz(func(t *testing.T, s string) {
		got := sanitizeBase(s)
		if got == "" {
			return
		}
		if got[0] != '/' {
			t.Fatalf("sanitizeBase(%q) = %q", s, got)
		}
	})
}
