package booking

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

const metadataHTML = `<html><body>
<select id="resort">
  <option value="">Any resort</option>
  <option value="1">Sunparks Kempense Meren</option>
  <option value="3">Sunparks De Haan</option>
</select>
<select id="accommodationType">
  <option value="10">Comfort Cottage</option>
  <option value="12">Premium Suite</option>
</select>
</body></html>`

type bookingStub struct {
	bootstraps   int64
	searchStatus int
	searchBody   string
}

func (b *bookingStub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&b.bootstraps, 1)
		fmt.Fprint(w, "<html>ok</html>")
	})
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, metadataHTML)
	})
	mux.HandleFunc("/api/search", func(w http.ResponseWriter, r *http.Request) {
		if b.searchStatus != 0 && b.searchStatus != http.StatusOK {
			w.WriteHeader(b.searchStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, b.searchBody)
	})
	return mux
}

func newTestClient(t *testing.T, stub *bookingStub) (*HTTPClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(stub.handler())
	t.Cleanup(srv.Close)
	return NewHTTPClient(Config{BaseURL: srv.URL, MetadataTTL: time.Hour}), srv
}

func TestCheckAvailabilityParsesOffers(t *testing.T) {
	stub := &bookingStub{searchBody: `{"results": [
		{"resortId": 1, "accommodationTypeId": 10, "dateFrom": "2026-07-01", "dateTo": "2026-07-08", "priceTotal": 910, "available": true},
		{"resortId": 3, "accommodationTypeId": 12, "dateFrom": "2026-07-01", "dateTo": "2026-07-08", "priceTotal": 1200, "available": false}
	]}`}
	client, _ := newTestClient(t, stub)

	avail, err := client.CheckAvailability(context.Background(), "2026-07-01", "2026-07-08", []int{1, 3}, []int{10, 12})
	if err != nil {
		t.Fatalf("CheckAvailability failed: %v", err)
	}

	// Unavailable entries are dropped.
	if len(avail) != 1 {
		t.Fatalf("got %d offers, want 1", len(avail))
	}
	a := avail[0]
	if a.ResortID != 1 || a.AccommodationTypeID != 10 {
		t.Errorf("offer ids = %d/%d", a.ResortID, a.AccommodationTypeID)
	}
	if a.ResortName != "Sunparks Kempense Meren" {
		t.Errorf("resort name = %q", a.ResortName)
	}
	if a.AccommodationTypeName != "Comfort Cottage" {
		t.Errorf("type name = %q", a.AccommodationTypeName)
	}
	if a.Nights != 7 {
		t.Errorf("nights = %d, want 7", a.Nights)
	}
	if a.PricePerNight != 130 {
		t.Errorf("price per night = %v, want 130", a.PricePerNight)
	}
	if a.Link == "" {
		t.Error("deep link not set")
	}

	if got := atomic.LoadInt64(&stub.bootstraps); got != 1 {
		t.Errorf("bootstrapped %d times, want 1", got)
	}
}

func TestCheckAvailabilitySessionReusedAcrossCalls(t *testing.T) {
	stub := &bookingStub{searchBody: `{"results": []}`}
	client, _ := newTestClient(t, stub)

	for i := 0; i < 3; i++ {
		if _, err := client.CheckAvailability(context.Background(), "2026-07-01", "2026-07-02", nil, nil); err != nil {
			t.Fatalf("call %d failed: %v", i, err)
		}
	}
	if got := atomic.LoadInt64(&stub.bootstraps); got != 1 {
		t.Errorf("bootstrapped %d times, want 1", got)
	}
}

func TestCheckAvailabilityRebootstrapsAfterRejectedSession(t *testing.T) {
	stub := &bookingStub{searchStatus: http.StatusUnauthorized}
	client, _ := newTestClient(t, stub)

	if _, err := client.CheckAvailability(context.Background(), "2026-07-01", "2026-07-02", nil, nil); err == nil {
		t.Fatal("expected error on 401")
	}

	stub.searchStatus = http.StatusOK
	stub.searchBody = `{"results": []}`
	if _, err := client.CheckAvailability(context.Background(), "2026-07-01", "2026-07-02", nil, nil); err != nil {
		t.Fatalf("retry after 401 failed: %v", err)
	}
	if got := atomic.LoadInt64(&stub.bootstraps); got != 2 {
		t.Errorf("bootstrapped %d times, want 2 (session invalidated by 401)", got)
	}
}

func TestCheckAvailabilityUpstreamError(t *testing.T) {
	stub := &bookingStub{searchStatus: http.StatusInternalServerError}
	client, _ := newTestClient(t, stub)

	if _, err := client.CheckAvailability(context.Background(), "2026-07-01", "2026-07-02", nil, nil); err == nil {
		t.Fatal("expected error on 500")
	}
}

func TestMetadataFallbackNames(t *testing.T) {
	stub := &bookingStub{searchBody: `{"results": [
		{"resortId": 99, "accommodationTypeId": 77, "dateFrom": "2026-07-01", "dateTo": "2026-07-02", "priceTotal": 100, "available": true}
	]}`}
	client, _ := newTestClient(t, stub)

	avail, err := client.CheckAvailability(context.Background(), "2026-07-01", "2026-07-02", nil, nil)
	if err != nil {
		t.Fatalf("CheckAvailability failed: %v", err)
	}
	if avail[0].ResortName != "Resort 99" {
		t.Errorf("fallback resort name = %q", avail[0].ResortName)
	}
	if avail[0].AccommodationTypeName != "Type 77" {
		t.Errorf("fallback type name = %q", avail[0].AccommodationTypeName)
	}
}
