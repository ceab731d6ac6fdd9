package shipping

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sadmann7/skateshop-sub000/internal/domain"
)

func floatPtr(v float64) *float64 { return &v }

func TestClient_GetRate(t *testing.T) {
	t.Run("returns rate in minor units", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/rates" {
				t.Errorf("expected /rates, got %s", r.URL.Path)
			}
			if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
				t.Errorf("unexpected auth header: %s", got)
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"amount":"12.34","currency":"USD"}`))
		}))
		defer server.Close()

		client := NewClient(server.URL, "test-key", server.Client())
		rate, err := client.GetRate(context.Background(), RateRequest{
			ToAddress: domain.Address{PostalCode: "94107", Country: "US"},
			Items:     []RateItem{{Quantity: 1}},
			StoreID:   "store-1",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rate != 1234 {
			t.Errorf("expected 1234, got %d", rate)
		}
	})

	t.Run("sums item dimensions with defaults", func(t *testing.T) {
		var got rateAPIRequest
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
				t.Errorf("failed to decode request: %v", err)
			}
			_, _ = w.Write([]byte(`{"amount":"5.00","currency":"USD"}`))
		}))
		defer server.Close()

		client := NewClient(server.URL, "test-key", server.Client())
		_, err := client.GetRate(context.Background(), RateRequest{
			Items: []RateItem{
				{Dimensions: domain.Dimensions{LengthCm: floatPtr(10), WidthCm: floatPtr(10), HeightCm: floatPtr(10), WeightG: floatPtr(100)}, Quantity: 2},
				{Quantity: 1}, // no dimensions, defaults apply
			},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if got.Parcel.LengthCm != 10*2+defaultLengthCm {
			t.Errorf("unexpected parcel length: %v", got.Parcel.LengthCm)
		}
		if got.Parcel.WeightG != 100*2+defaultWeightG {
			t.Errorf("unexpected parcel weight: %v", got.Parcel.WeightG)
		}
	})

	t.Run("rejects non-numeric rate", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"amount":"not-a-number"}`))
		}))
		defer server.Close()

		client := NewClient(server.URL, "test-key", server.Client())
		if _, err := client.GetRate(context.Background(), RateRequest{Items: []RateItem{{Quantity: 1}}}); err == nil {
			t.Fatal("expected error for non-numeric rate")
		}
	})

	t.Run("rejects negative rate", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"amount":"-3.00"}`))
		}))
		defer server.Close()

		client := NewClient(server.URL, "test-key", server.Client())
		if _, err := client.GetRate(context.Background(), RateRequest{Items: []RateItem{{Quantity: 1}}}); err == nil {
			t.Fatal("expected error for negative rate")
		}
	})

	t.Run("rejects carrier error status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		client := NewClient(server.URL, "test-key", server.Client())
		if _, err := client.GetRate(context.Background(), RateRequest{Items: []RateItem{{Quantity: 1}}}); err == nil {
			t.Fatal("expected error for carrier failure")
		}
	})
}
