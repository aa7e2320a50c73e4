package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestSanitizeBase(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"/", ""},
		{"api", "/api"},
		{"/api", "/api"},
		{"/api/", "/api"},
		{" api ", "/api"},
	}
	for _, c := range cases {
		if got := sanitizeBase(c.in); got != c.want {
			t.Fatalf("sanitizeBase(%q)=%q want %q", c.in, got, c.want)
		}
	}
}

func TestParseAppID(t *testing.T) {
	valid := map[string]uint32{"1": 1, "730": 730, " 4294967295 ": 4294967295}
	for in, want := range valid {
		got, err := parseAppID(in)
		if err != nil || got != want {
			t.Fatalf("parseAppID(%q)=%d,%v want %d", in, got, err, want)
		}
	}
	for _, in := range []string{"", "0", "-1", "4294967296", "abc", "1.5"} {
		if _, err := parseAppID(in); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
}

func TestWriteJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	writeJSON(c, http.StatusTeapot, okResp{OK: true})
	if rec.Code != http.StatusTeapot || rec.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("unexpected response: %d %v", rec.Code, rec.Header())
	}
	if rec.Body.String() != "{\"ok\":true}\n" {
		t.Fatalf("body: %q", rec.Body.String())
	}
}
