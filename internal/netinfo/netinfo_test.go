package netinfo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestCurrentIP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ip":"203.0.113.7"}`))
	}))
	defer server.Close()

	client := NewClient(WithIPEndpoint(server.URL))
	ip, err := client.CurrentIP(context.Background())
	if err != nil {
		t.Fatalf("CurrentIP returned error: %v", err)
	}
	if ip != "203.0.113.7" {
		t.Fatalf("ip = %q", ip)
	}
}

func TestCurrentIPRejectsEmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ip":""}`))
	}))
	defer server.Close()

	client := NewClient(WithIPEndpoint(server.URL))
	if _, err := client.CurrentIP(context.Background()); err == nil {
		t.Fatal("expected error for empty address")
	}
}

func TestCurrentIPDeduplicatesConcurrentCalls(t *testing.T) {
	var requests atomic.Int64
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		<-release
		w.Write([]byte(`{"ip":"203.0.113.7"}`))
	}))
	defer server.Close()

	client := NewClient(WithIPEndpoint(server.URL))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = client.CurrentIP(context.Background())
	}()
	for requests.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	go func() {
		defer wg.Done()
		_, _ = client.CurrentIP(context.Background())
	}()
	// Give the second caller time to join the in-flight request.
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := requests.Load(); got != 1 {
		t.Fatalf("upstream requests = %d, want 1", got)
	}
}

func TestLookup(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/198.51.100.4" {
			t.Fatalf("unexpected path %q", r.URL.Path)
		}
		w.Write([]byte(`{"query":"198.51.100.4","country":"Iceland","city":"Reykjavik"}`))
	}))
	defer server.Close()

	client := NewClient(WithLookupEndpoint(server.URL + "/"))
	info, err := client.Lookup(context.Background(), "198.51.100.4")
	if err != nil {
		t.Fatalf("Lookup returned error: %v", err)
	}
	if info.Country != "Iceland" || info.City != "Reykjavik" {
		t.Fatalf("info = %+v", info)
	}
}

func TestLookupRequiresIP(t *testing.T) {
	client := NewClient()
	if _, err := client.Lookup(context.Background(), "  "); err == nil {
		t.Fatal("expected error for blank ip")
	}
}
