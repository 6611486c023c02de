//go:build integration

package integration

import (
	"net/http"
	"testing"
)

func TestHealth(t *testing.T) {
	for _, path := range []string{"/livez", "/readyz"} {
		t.Run(path, func(t *testing.T) {
			resp := doGet(t, path)
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				t.Fatalf("expected 200, got %d", resp.StatusCode)
			}

			body := decodeJSON[healthResponse](t, resp)
			if body.Status != "ok" {
				t.Fatalf("expected status ok, got %q (checks: %v)", body.Status, body.Checks)
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	t.Run("Generated", func(t *testing.T) {
		resp := doGet(t, "/livez")
		defer resp.Body.Close()

		if resp.Header.Get("X-Request-ID") == "" {
			t.Fatal("X-Request-ID header not present")
		}
	})

	t.Run("Echoed", func(t *testing.T) {
		resp := doRequest(t, http.MethodGet, "/livez", nil, map[string]string{"X-Request-ID": "checkout-req-42"})
		defer resp.Body.Close()

		if got := resp.Header.Get("X-Request-ID"); got != "checkout-req-42" {
			t.Errorf("X-Request-ID: got %q, want %q", got, "checkout-req-42")
		}
	})
}

func TestCORS_Preflight(t *testing.T) {
	resp := doRequest(t, http.MethodOptions, "/api/checkout", nil, map[string]string{
		"Origin":                         "http://shop.example.com",
		"Access-Control-Request-Method":  "POST",
		"Access-Control-Request-Headers": "Idempotency-Key",
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") == "" {
		t.Error("Access-Control-Allow-Origin header not present")
	}
	if resp.Header.Get("Access-Control-Allow-Methods") == "" {
		t.Error("Access-Control-Allow-Methods header not present")
	}
}

func TestRateLimit_Headers(t *testing.T) {
	resp := doGet(t, "/api/coupons/auto-apply")
	defer resp.Body.Close()

	if resp.Header.Get("X-RateLimit-Limit") == "" {
		t.Error("X-RateLimit-Limit header not present")
	}
	if resp.Header.Get("X-RateLimit-Remaining") == "" {
		t.Error("X-RateLimit-Remaining header not present")
	}
}

func TestUnknownRoute(t *testing.T) {
	env := expect(t, doGet(t, "/api/nowhere"), http.StatusNotFound)
	if env.Success {
		t.Error("expected success=false")
	}
	if env.ErrorCode != "NOT_FOUND" {
		t.Errorf("error_code: got %q, want NOT_FOUND", env.ErrorCode)
	}
}
