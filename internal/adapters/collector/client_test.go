package collector_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"repscore/internal/adapters/collector"
	"repscore/internal/domain"
)

func TestClient_Fetch_AllSources(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "/sources/google/"):
			w.Write([]byte(`{"score": 4.5, "count": 1200}`))
		case strings.Contains(r.URL.Path, "/sources/booking/"):
			w.Write([]byte(`{"score": 8.7, "count": 950}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer ts.Close()

	cl, err := collector.New(ts.URL, "test-key", 100)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	got, err := cl.Fetch(ctx, domain.Hotel{ID: 1, Name: "Grand Plaza"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	g := got[domain.SourceGoogle]
	if g.Score == nil || *g.Score != 4.5 || g.Count == nil || *g.Count != 1200 {
		t.Fatalf("google: %+v", g)
	}
	b := got[domain.SourceBooking]
	if b.Score == nil || *b.Score != 8.7 {
		t.Fatalf("booking: %+v", b)
	}
	// 404 sources degrade to absent readings, not errors.
	if e, ok := got[domain.SourceExpedia]; ok && e.Score != nil {
		t.Fatalf("expedia should be absent: %+v", e)
	}
}

func TestClient_Fetch_RetriesThenSuccess(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/sources/google/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		switch atomic.AddInt32(&hits, 1) {
		case 1, 2:
			w.WriteHeader(500) // two transient failures
		default:
			w.Write([]byte(`{"score": 4.0, "count": 10}`))
		}
	}))
	defer ts.Close()

	cl, err := collector.New(ts.URL, "test-key", 100)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	got, err := cl.Fetch(ctx, domain.Hotel{ID: 2, Name: "Harbor Inn"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	g := got[domain.SourceGoogle]
	if g.Score == nil || *g.Score != 4.0 {
		t.Fatalf("google after retries: %+v", g)
	}
	if atomic.LoadInt32(&hits) < 3 {
		t.Fatalf("expected at least 3 google calls due to retries, got %d", hits)
	}
}

func TestClient_Fetch_UsesSourceDisplayName(t *testing.T) {
	var sawName atomic.Value
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/sources/booking/") {
			sawName.Store(r.URL.Query().Get("name"))
			w.Write([]byte(`{"score": 9.0, "count": 5}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	cl, _ := collector.New(ts.URL, "", 100)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	h := domain.Hotel{
		ID:          3,
		Name:        "Grand Plaza",
		SourceNames: map[domain.Source]string{domain.SourceBooking: "Grand Plaza Hotel & Spa"},
	}
	if _, err := cl.Fetch(ctx, h); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got, _ := sawName.Load().(string); got != "Grand Plaza Hotel & Spa" {
		t.Fatalf("booking must query the source display name, got %q", got)
	}
}
