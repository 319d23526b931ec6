package util

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// echoRequestID runs WithRequestID once and returns the id seen by the
// handler and the id written to the response.
func echoRequestID(t *testing.T, incoming string) (inCtx, inHeader string) {
	t.Helper()
	h := WithRequestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		inCtx = RequestIDFromRequest(r)
		if LoggerFromContext(r.Context()) == nil {
			t.Fatalf("request logger missing from context")
		}
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/cards/alice", nil)
	if incoming != "" {
		req.Header.Set("X-Request-Id", incoming)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return inCtx, rec.Header().Get("X-Request-Id")
}

func TestWithRequestID(t *testing.T) {
	ctxID, headerID := echoRequestID(t, " edge-7f3a.b_2 ")
	if ctxID != "edge-7f3a.b_2" || headerID != ctxID {
		t.Fatalf("well-formed id should pass through trimmed: ctx=%q header=%q", ctxID, headerID)
	}

	ctxID, headerID = echoRequestID(t, "")
	if len(ctxID) != 32 || headerID != ctxID {
		t.Fatalf("expected generated 32-char id, ctx=%q header=%q", ctxID, headerID)
	}

	for _, bad := range []string{"two words", strings.Repeat("x", maxRequestIDLen+1), "ünicode", "a/b"} {
		ctxID, headerID = echoRequestID(t, bad)
		if ctxID == strings.TrimSpace(bad) || len(ctxID) != 32 || headerID != ctxID {
			t.Fatalf("%q should be replaced, got ctx=%q header=%q", bad, ctxID, headerID)
		}
	}
}

func TestRequestIDFromNilRequest(t *testing.T) {
	if got := RequestIDFromRequest(nil); got != "" {
		t.Fatalf("expected empty id, got %q", got)
	}
}
