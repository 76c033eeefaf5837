package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	stdlog "log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"media-cache/internal/metrics"
)

func TestStatusWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := newStatusWriter(rec)

	if sw.statusCode != http.StatusOK {
		t.Errorf("default status = %d, want 200", sw.statusCode)
	}

	sw.WriteHeader(http.StatusNotFound)
	sw.WriteHeader(http.StatusInternalServerError)
	if sw.statusCode != http.StatusNotFound {
		t.Errorf("status = %d, want first WriteHeader to win", sw.statusCode)
	}

	if _, err := sw.Write([]byte("hello")); err != nil {
		t.Fatal(err)
	}
	if sw.bytesWritten != 5 {
		t.Errorf("bytesWritten = %d, want 5", sw.bytesWritten)
	}
	if sw.Unwrap() != rec {
		t.Error("Unwrap() should return the wrapped writer")
	}
}

func TestSanitizeLogField(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain", input: "/api/thumbnail/a.jpg", want: "/api/thumbnail/a.jpg"},
		{name: "newline forging", input: "a\nb\rc", want: "a b c"},
		{name: "ansi escape", input: "\x1b[31mred", want: "[31mred"},
		{name: "null byte", input: "a\x00b", want: "ab"},
		{name: "tab kept", input: "a\tb", want: "a\tb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizeLogField(tt.input); got != tt.want {
				t.Errorf("sanitizeLogField(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{name: "forwarded chain", headers: map[string]string{"X-Forwarded-For": "10.0.0.1, 10.0.0.2"}, want: "10.0.0.1"},
		{name: "real ip", headers: map[string]string{"X-Real-IP": "10.0.0.3"}, want: "10.0.0.3"},
		{name: "remote addr", remote: "192.168.1.5:4711", want: "192.168.1.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := clientIP(r); got != tt.want {
				t.Errorf("clientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := stdlog.Writer()
	stdlog.SetOutput(&buf)
	t.Cleanup(func() { stdlog.SetOutput(orig) })
	return &buf
}

func TestLoggerMiddleware(t *testing.T) {
	buf := captureLog(t)

	handler := Logger(DefaultLoggingConfig())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/thumbnail/a.jpg?w=1", nil)
	req.Header.Set("User-Agent", "test agent")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	line := buf.String()
	for _, want := range []string{"GET", "/api/thumbnail/a.jpg", "w=1", " 418 5 ", `"test agent"`} {
		if !strings.Contains(line, want) {
			t.Errorf("log line %q missing %q", line, want)
		}
	}

	buf.Reset()
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if buf.Len() != 0 {
		t.Errorf("/metrics should not be logged, got %q", buf.String())
	}
}

func TestShouldSkipHealthChecks(t *testing.T) {
	cfg := LoggingConfig{LogHealthChecks: false}
	if !shouldSkip("/healthz", cfg) {
		t.Error("health checks should be skipped when disabled")
	}
	if shouldSkip("/api/metadata", cfg) {
		t.Error("api paths should be logged")
	}
}

func TestMetricsUsesRouteTemplate(t *testing.T) {
	r := mux.NewRouter()
	r.Use(Metrics(DefaultMetricsConfig()))
	r.HandleFunc("/api/thumbnail/{id:.+}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}).Methods(http.MethodGet)

	counter := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/api/thumbnail/{id:.+}", "404")
	before := testutil.ToFloat64(counter)

	for _, id := range []string{"a.jpg", "trip/b.jpg"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/thumbnail/"+id, nil))
	}

	if got := testutil.ToFloat64(counter) - before; got != 2 {
		t.Errorf("requests recorded under route template = %v, want 2", got)
	}
}

func TestRouteTemplateWithoutRoute(t *testing.T) {
	if got := routeTemplate(httptest.NewRequest(http.MethodGet, "/x", nil)); got != unmatchedRoute {
		t.Errorf("routeTemplate() = %q, want %q", got, unmatchedRoute)
	}
}

func TestCompressionMiddleware(t *testing.T) {
	big := strings.Repeat(`{"id":"a.jpg"},`, 200)

	tests := []struct {
		name           string
		acceptEncoding string
		contentType    string
		body           string
		wantGzip       bool
	}{
		{name: "large json", acceptEncoding: "gzip", contentType: "application/json", body: big, wantGzip: true},
		{name: "small json", acceptEncoding: "gzip", contentType: "application/json", body: `{}`, wantGzip: false},
		{name: "jpeg", acceptEncoding: "gzip", contentType: "image/jpeg", body: big, wantGzip: false},
		{name: "client without gzip", acceptEncoding: "", contentType: "application/json", body: big, wantGzip: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := Compression(DefaultCompressionConfig())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				w.WriteHeader(http.StatusAccepted)
				// Split writes exercise buffering across the threshold.
				half := len(tt.body) / 2
				_, _ = w.Write([]byte(tt.body[:half]))
				_, _ = w.Write([]byte(tt.body[half:]))
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/metadata", nil)
			if tt.acceptEncoding != "" {
				req.Header.Set("Accept-Encoding", tt.acceptEncoding)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusAccepted {
				t.Errorf("status = %d, want 202", rec.Code)
			}

			gzipped := rec.Header().Get("Content-Encoding") == "gzip"
			if gzipped != tt.wantGzip {
				t.Fatalf("gzip = %v, want %v", gzipped, tt.wantGzip)
			}

			body := rec.Body.Bytes()
			if gzipped {
				zr, err := gzip.NewReader(bytes.NewReader(body))
				if err != nil {
					t.Fatalf("gzip.NewReader() error = %v", err)
				}
				body, err = io.ReadAll(zr)
				if err != nil {
					t.Fatalf("read gzip body: %v", err)
				}
			}
			if string(body) != tt.body {
				t.Errorf("body mismatch: got %d bytes, want %d", len(body), len(tt.body))
			}
		})
	}
}
