package odata

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Sentinel-Gate/hrgate/internal/domain/directory"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	c, err := NewClient(Config{
		BaseURL:  srv.URL + "/odata/v2/",
		Username: "admin@ACME",
		Password: "secret",
		Timeout:  5 * time.Second,
	}, opts...)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c, srv
}

func TestNewClient_InvalidBaseURL(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "ftp://host/odata", "https://", "://bad"} {
		if _, err := NewClient(Config{BaseURL: raw}); err == nil {
			t.Errorf("NewClient(%q) error = nil, want error", raw)
		}
	}
}

func TestClient_PointRead(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s", r.Method)
		}
		if r.URL.Path != "/odata/v2/User('d''Arc')" {
			t.Errorf("path = %q", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "admin@ACME" || pass != "secret" {
			t.Errorf("basic auth = %q, %q, %v", user, pass, ok)
		}
		q := r.URL.Query()
		if q.Get("$format") != "json" || q.Get("$select") != "userId,status" || q.Get("$expand") != "personKeyNav" {
			t.Errorf("query = %v", q)
		}
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("Accept = %q", r.Header.Get("Accept"))
		}
		_, _ = io.WriteString(w, `{"d":{"userId":"d'Arc","status":"t"}}`)
	})

	env, err := c.Read(context.Background(), directory.Query{
		EntitySet: "User",
		Key:       "d'Arc",
		Select:    []string{"userId", "status"},
		Expand:    []string{"personKeyNav"},
	})
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	first, ok := env.First()
	if !ok || !env.Single || first.String("userId") != "d'Arc" {
		t.Errorf("envelope = %+v", env)
	}
}

func TestClient_CollectionRead(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if r.URL.Path != "/odata/v2/User" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if q.Get("$filter") != "email eq 'o''neil@acme.test'" {
			t.Errorf("$filter = %q", q.Get("$filter"))
		}
		if q.Get("$inlinecount") != "allpages" {
			t.Errorf("$inlinecount = %q", q.Get("$inlinecount"))
		}
		_, _ = io.WriteString(w, `{"d":{"results":[{"userId":"u1"},{"userId":"u2"}],"__count":"42"}}`)
	})

	env, err := c.Read(context.Background(), directory.Query{
		EntitySet:   "User",
		Filter:      directory.Eq("email", "o'neil@acme.test"),
		InlineCount: true,
	})
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(env.Results) != 2 || env.Count != 42 {
		t.Errorf("envelope = %+v", env)
	}
}

func TestClient_RemoteRejected(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":{"message":"entity not found"}}`)
	})

	_, err := c.Read(context.Background(), directory.Query{EntitySet: "User", Key: "ghost"})
	var rejected *directory.RemoteRejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("error = %v, want RemoteRejectedError", err)
	}
	if rejected.Status != http.StatusNotFound || !strings.Contains(rejected.Body, "entity not found") {
		t.Errorf("rejected = %+v", rejected)
	}
	if !errors.Is(err, directory.ErrRemoteRejected) {
		t.Error("errors.Is(ErrRemoteRejected) = false")
	}
}

func TestClient_TransportFailure(t *testing.T) {
	t.Parallel()

	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	srv.Close()

	_, err := c.Read(context.Background(), directory.Query{EntitySet: "User", Key: "u1"})
	if !errors.Is(err, directory.ErrTransport) {
		t.Fatalf("error = %v, want ErrTransport", err)
	}
	if directory.ErrorKind(err) != "transport_failure" {
		t.Errorf("ErrorKind() = %q", directory.ErrorKind(err))
	}
}

func TestClient_ContextCanceled(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"d":{}}`)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Read(ctx, directory.Query{EntitySet: "User", Key: "u1"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestClient_Upsert(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/odata/v2/upsert" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		if r.URL.Query().Get("$format") != "json" {
			t.Errorf("$format = %q", r.URL.Query().Get("$format"))
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Content-Type = %q", r.Header.Get("Content-Type"))
		}
		var got map[string]any
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		meta, _ := got["__metadata"].(map[string]any)
		if meta["uri"] != "User('u1')" || got["status"] != "t" {
			t.Errorf("body = %v", got)
		}
		_, _ = io.WriteString(w, `{"d":[{"key":"User/userId=u1","status":"OK","httpCode":204}]}`)
	})

	res, err := c.Upsert(context.Background(), directory.Payload{
		"__metadata": directory.Metadata{URI: "User('u1')", Type: "SFOData.User"},
		"userId":     "u1",
		"status":     "t",
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if !strings.Contains(string(res), `"httpCode":204`) {
		t.Errorf("result = %s", res)
	}
}

func TestClient_UpsertNonJSONBody(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want string
	}{
		{"empty", "", "null"},
		{"plain text", "OK", `"OK"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, tt.body)
			})
			res, err := c.Upsert(context.Background(), directory.Payload{"userId": "u1"})
			if err != nil {
				t.Fatalf("Upsert() error = %v", err)
			}
			if string(res) != tt.want {
				t.Errorf("result = %s, want %s", res, tt.want)
			}
		})
	}
}

func TestClient_ReadRawXML(t *testing.T) {
	t.Parallel()

	const feed = `<entry><content><m:properties><d:userId>u1</d:userId></m:properties></content></entry>`
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("$format") != "xml" {
			t.Errorf("$format = %q", r.URL.Query().Get("$format"))
		}
		if !strings.Contains(r.Header.Get("Accept"), "xml") {
			t.Errorf("Accept = %q", r.Header.Get("Accept"))
		}
		_, _ = io.WriteString(w, feed)
	})

	body, err := c.ReadRaw(context.Background(), directory.Query{EntitySet: "User", Key: "u1"}, FormatXML)
	if err != nil {
		t.Fatalf("ReadRaw() error = %v", err)
	}
	if string(body) != feed {
		t.Errorf("body = %q", body)
	}

	if _, err := c.Read(context.Background(), directory.Query{}); err == nil {
		t.Error("Read() without entity set error = nil")
	}
}

func TestClient_Spans(t *testing.T) {
	t.Parallel()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":"bad"}`)
			return
		}
		_, _ = io.WriteString(w, `{"d":{"userId":"u1"}}`)
	}, WithTracer(tp.Tracer("test")))

	if _, err := c.Read(context.Background(), directory.Query{EntitySet: "User", Key: "u1"}); err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if _, err := c.Upsert(context.Background(), directory.Payload{"userId": "u1"}); err == nil {
		t.Fatal("Upsert() error = nil, want rejection")
	}

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("ended spans = %d, want 2", len(spans))
	}
	if spans[0].Name() != "odata.read" || spans[1].Name() != "odata.upsert" {
		t.Errorf("span names = %s, %s", spans[0].Name(), spans[1].Name())
	}
	if spans[1].Status().Code.String() != "Error" {
		t.Errorf("upsert span status = %v", spans[1].Status())
	}
}

func TestClient_ReadURL(t *testing.T) {
	t.Parallel()

	c, err := NewClient(Config{BaseURL: "https://api.acme.test/odata/v2"})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	got := c.ReadURL(directory.Query{EntitySet: "EmpJob", Filter: "empId eq 'E1'", Select: []string{"userId"}}, FormatJSON)
	if !strings.HasPrefix(got, "https://api.acme.test/odata/v2/EmpJob?") {
		t.Errorf("ReadURL() = %q", got)
	}
	if !strings.Contains(got, "%24select=userId") {
		t.Errorf("ReadURL() = %q, want $select", got)
	}
}
