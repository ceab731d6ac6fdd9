package validate

import (
	"strings"
	"testing"
)

type addItemRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
}

func TestStruct(t *testing.T) {
	t.Run("valid request passes", func(t *testing.T) {
		req := addItemRequest{ProductID: "7c9e6679-7425-40de-944b-e07fc1f90ae7", Quantity: 2}
		if err := Struct(req); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("joins all field failures into one message", func(t *testing.T) {
		err := Struct(addItemRequest{})
		if err == nil {
			t.Fatal("expected error")
		}
		msg := err.Error()
		if !strings.Contains(msg, "ProductID is required") {
			t.Errorf("missing ProductID failure in %q", msg)
		}
		if !strings.Contains(msg, "Quantity must be greater than 0") {
			t.Errorf("missing Quantity failure in %q", msg)
		}
		if !strings.Contains(msg, "; ") {
			t.Errorf("expected joined message, got %q", msg)
		}
	})
}
