package util

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWithSecurityHeaders(t *testing.T) {
	h := WithSecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	cases := []struct {
		path     string
		https    func(*http.Request)
		noStore  bool
		wantHSTS bool
	}{
		{path: "/api/admin/card", noStore: true},
		{path: "/api/cards/alice", noStore: true, https: func(r *http.Request) { r.Header.Set("X-Forwarded-Proto", "HTTPS") }, wantHSTS: true},
		{path: "/uploads/profile_images/alice_1", https: func(r *http.Request) { r.TLS = &tls.ConnectionState{} }, wantHSTS: true},
		{path: "/healthz"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, tc.path, nil)
		if tc.https != nil {
			tc.https(req)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		hdr := rec.Header()

		if hdr.Get("X-Content-Type-Options") != "nosniff" || hdr.Get("X-Frame-Options") != "DENY" {
			t.Fatalf("%s: missing baseline headers: %v", tc.path, hdr)
		}
		if hdr.Get("Cross-Origin-Resource-Policy") != "cross-origin" {
			t.Fatalf("%s: card images are embedded cross-origin", tc.path)
		}
		if got := hdr.Get("Cache-Control") == "no-store"; got != tc.noStore {
			t.Fatalf("%s: no-store = %v, want %v", tc.path, got, tc.noStore)
		}
		if got := hdr.Get("Strict-Transport-Security") != ""; got != tc.wantHSTS {
			t.Fatalf("%s: hsts = %v, want %v", tc.path, got, tc.wantHSTS)
		}
	}
}
