package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Lakyn80/naramkova-moda/internal/platform/requestctx"
)

func TestParseCloudTraceContext(t *testing.T) {
	cases := []struct {
		name    string
		header  string
		ok      bool
		sampled bool
	}{
		{name: "sampled", header: "105445aa7843bc8bf206b12000100000/1;o=1", ok: true, sampled: true},
		{name: "not sampled", header: "105445aa7843bc8bf206b12000100000/00000000000000ab;o=0", ok: true},
		{name: "no options", header: "105445aa7843bc8bf206b12000100000/ab", ok: true},
		{name: "short trace", header: "1054/1;o=1"},
		{name: "missing span", header: "105445aa7843bc8bf206b12000100000"},
		{name: "bad span", header: "105445aa7843bc8bf206b12000100000/zz;o=1"},
		{name: "empty", header: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			info, spanCtx, ok := parseCloudTraceContext(tc.header)
			if ok != tc.ok {
				t.Fatalf("expected ok=%v, got %v", tc.ok, ok)
			}
			if !ok {
				return
			}
			if info.TraceID != "105445aa7843bc8bf206b12000100000" {
				t.Fatalf("unexpected trace id %q", info.TraceID)
			}
			if info.Sampled != tc.sampled || spanCtx.IsSampled() != tc.sampled {
				t.Fatalf("expected sampled=%v", tc.sampled)
			}
			if !spanCtx.IsRemote() {
				t.Fatalf("expected remote span context")
			}
		})
	}
}

func TestTraceMiddlewareStoresTraceInfo(t *testing.T) {
	var got requestctx.TraceInfo
	handler := TraceMiddleware("proj-1")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = requestctx.Trace(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/cart", nil)
	req.Header.Set(cloudTraceHeader, "105445aa7843bc8bf206b12000100000/1;o=1")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if got.ProjectID != "proj-1" {
		t.Fatalf("expected project id on trace info, got %q", got.ProjectID)
	}
	if got.TraceID != "105445aa7843bc8bf206b12000100000" {
		t.Fatalf("expected remote trace id to be continued, got %q", got.TraceID)
	}
	if rr.Header().Get(cloudTraceHeader) == "" {
		t.Fatalf("expected trace header on response")
	}
}
