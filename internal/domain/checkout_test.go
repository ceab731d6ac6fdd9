package domain

import (
	"testing"
)

func TestCheckoutItemsRoundTrip(t *testing.T) {
	items := []CheckoutItem{
		{ProductID: "p1", Price: 1000, Quantity: 2},
		{ProductID: "p2", Price: 2550, Quantity: 1},
	}

	encoded, err := EncodeCheckoutItems(items)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	decoded, err := DecodeCheckoutItems(encoded)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if len(decoded) != len(items) {
		t.Fatalf("expected %d items, got %d", len(items), len(decoded))
	}
	for i := range items {
		if decoded[i] != items[i] {
			t.Errorf("item %d: expected %+v, got %+v", i, items[i], decoded[i])
		}
	}
}

func TestDecodeCheckoutItems_Malformed(t *testing.T) {
	for _, raw := range []string{"", "{", `{"productId":"p1"}`, "null,"} {
		if _, err := DecodeCheckoutItems(raw); err == nil {
			t.Errorf("expected error for %q", raw)
		}
	}
}
