//go:build integration

package integration

import (
	"net/http"
	"testing"
)

func TestOrderLifecycle(t *testing.T) {
	placed := decodeData[placedResponse](t,
		expect(t, doPost(t, "/api/checkout", orderBody(uniqueEmail(), "")), http.StatusCreated))
	path := "/api/orders/" + placed.Order.OrderNumber

	t.Run("NoAPIKey", func(t *testing.T) {
		resp := doPost(t, path+"/payment", map[string]string{"result": "paid"})
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", resp.StatusCode)
		}
	})

	t.Run("WrongAPIKey", func(t *testing.T) {
		resp := doRequest(t, http.MethodPost, path+"/status", map[string]string{"status": "shipped"},
			map[string]string{"X-API-Key": "wrong-key"})
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", resp.StatusCode)
		}
	})

	steps := []struct {
		Name          string
		Path          string
		Body          map[string]string
		Status        int
		OrderStatus   string
		PaymentStatus string
		Code          string
	}{
		{Name: "Paid", Path: "/payment", Body: map[string]string{"result": "paid"},
			Status: http.StatusOK, OrderStatus: "processing", PaymentStatus: "paid"},
		{Name: "FailAfterPaid", Path: "/payment", Body: map[string]string{"result": "failed"},
			Status: http.StatusConflict, Code: "INVALID_STATUS_TRANSITION"},
		{Name: "Shipped", Path: "/status", Body: map[string]string{"status": "shipped"},
			Status: http.StatusOK, OrderStatus: "shipped", PaymentStatus: "paid"},
		{Name: "BackToPending", Path: "/status", Body: map[string]string{"status": "pending"},
			Status: http.StatusConflict, Code: "INVALID_STATUS_TRANSITION"},
		{Name: "Delivered", Path: "/status", Body: map[string]string{"status": "delivered"},
			Status: http.StatusOK, OrderStatus: "delivered", PaymentStatus: "paid"},
	}
	for _, step := range steps {
		t.Run(step.Name, func(t *testing.T) {
			env := expect(t, doAdminPost(t, path+step.Path, step.Body), step.Status)
			if step.Code != "" {
				if env.ErrorCode != step.Code {
					t.Errorf("error_code: got %q, want %q", env.ErrorCode, step.Code)
				}
				return
			}

			o := decodeData[orderResponse](t, env)
			if o.Status != step.OrderStatus {
				t.Errorf("status: got %q, want %q", o.Status, step.OrderStatus)
			}
			if o.PaymentStatus != step.PaymentStatus {
				t.Errorf("payment_status: got %q, want %q", o.PaymentStatus, step.PaymentStatus)
			}
		})
	}

	got := decodeData[orderResponse](t, expect(t, doGet(t, path), http.StatusOK))
	if got.Status != "delivered" {
		t.Errorf("final status: got %q, want delivered", got.Status)
	}
}

func TestGetOrder_NotFound(t *testing.T) {
	env := expect(t, doGet(t, "/api/orders/ORD-19700101-NOPE00"), http.StatusNotFound)
	if env.ErrorCode != "NOT_FOUND" {
		t.Errorf("error_code: got %q, want NOT_FOUND", env.ErrorCode)
	}
}
