package paystack

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestVerifyTransaction_Success(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Fatalf("method = %s, want GET", r.Method)
		}
		if r.URL.Path != "/transaction/verify/ref-123" {
			t.Fatalf("path = %s, want /transaction/verify/ref-123", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk_test_secret" {
			t.Fatalf("authorization = %q, want bearer secret", got)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"status": true,
			"message": "Verification successful",
			"data": {
				"status": "success",
				"reference": "ref-123",
				"amount": 250000,
				"currency": "NGN",
				"customer": {"email": "buyer@example.com"}
			}
		}`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "sk_test_secret")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	payment, err := client.VerifyTransaction(ctx, "ref-123")
	if err != nil {
		t.Fatalf("VerifyTransaction error: %v", err)
	}
	if payment.Reference != "ref-123" {
		t.Fatalf("reference = %q, want ref-123", payment.Reference)
	}
	if payment.AmountKobo != 250000 {
		t.Fatalf("amount = %d, want 250000", payment.AmountKobo)
	}
	if payment.Currency != "NGN" {
		t.Fatalf("currency = %q, want NGN", payment.Currency)
	}
	if payment.CustomerEmail != "buyer@example.com" {
		t.Fatalf("customer email = %q", payment.CustomerEmail)
	}
}

func TestVerifyTransaction_NotSuccessful(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status": true, "data": {"status": "abandoned", "reference": "ref-123"}}`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "sk_test_secret")

	_, err := client.VerifyTransaction(context.Background(), "ref-123")
	if !errors.Is(err, ErrVerificationFailed) {
		t.Fatalf("expected ErrVerificationFailed, got %v", err)
	}
}

func TestVerifyTransaction_GatewayError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "sk_test_secret")

	_, err := client.VerifyTransaction(context.Background(), "ref-404")
	if !errors.Is(err, ErrVerificationFailed) {
		t.Fatalf("expected ErrVerificationFailed, got %v", err)
	}
}

func TestVerifyTransaction_Unreachable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	ts.Close()

	client := NewClient(ts.URL, "sk_test_secret")

	_, err := client.VerifyTransaction(context.Background(), "ref-123")
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable, got %v", err)
	}
}

func TestVerifyTransaction_NotConfigured(t *testing.T) {
	client := NewClient("", "")

	_, err := client.VerifyTransaction(context.Background(), "ref-123")
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestInitializeTransaction(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/transaction/initialize" {
			t.Fatalf("path = %s", r.URL.Path)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"status": true,
			"data": {
				"authorization_url": "https://checkout.paystack.com/abc",
				"access_code": "abc",
				"reference": "ref-new"
			}
		}`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "sk_test_secret")

	tx, err := client.InitializeTransaction(context.Background(), "buyer@example.com", 50000)
	if err != nil {
		t.Fatalf("InitializeTransaction error: %v", err)
	}
	if tx.Reference != "ref-new" {
		t.Fatalf("reference = %q, want ref-new", tx.Reference)
	}
	if tx.AuthorizationURL == "" {
		t.Fatalf("authorization url must not be empty")
	}
}

func TestInitializeTransaction_GatewayError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html>502 Bad Gateway</html>"))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "sk_test_secret")

	_, err := client.InitializeTransaction(context.Background(), "buyer@example.com", 50000)
	if err == nil {
		t.Fatalf("expected error for gateway failure")
	}
	if !strings.Contains(err.Error(), "unexpected status 502") {
		t.Fatalf("error = %v, want report of gateway status", err)
	}
}
