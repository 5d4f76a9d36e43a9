package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func signStripePayload(secret string, payload []byte) string {
	ts := time.Now().Unix()
	signed := fmt.Sprintf("%d.%s", ts, string(payload))
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(signed))
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func TestVerifyStripeSignature(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	secret := "whsec_test"
	header := signStripePayload(secret, payload)

	if !verifyStripeSignature(payload, header, secret, 300) {
		t.Fatal("expected signature to validate")
	}
	if verifyStripeSignature(payload, header, "wrong-secret", 300) {
		t.Fatal("expected signature with wrong secret to fail")
	}
}

func TestVerifyAndParseCallbackExtractsSessionAndRecord(t *testing.T) {
	secret := "whsec_test"
	p := NewStripeProvider(StripeConfig{SecretKey: "sk_test", WebhookSecret: secret})

	payload := []byte(`{
		"id": "evt_1",
		"type": "checkout.session.completed",
		"data": {"object": {"id": "cs_test_1", "metadata": {"record_id": "rec-1"}}}
	}`)

	event, err := p.VerifyAndParseCallback(context.Background(), payload, signStripePayload(secret, payload))
	if err != nil {
		t.Fatalf("verify and parse failed: %v", err)
	}
	if event.SessionID == nil || *event.SessionID != "cs_test_1" {
		t.Fatalf("expected session id cs_test_1, got %+v", event.SessionID)
	}
	if event.RecordID == nil || *event.RecordID != "rec-1" {
		t.Fatalf("expected record id rec-1, got %+v", event.RecordID)
	}
	if event.ProviderEventID == nil || *event.ProviderEventID != "evt_1" {
		t.Fatalf("expected provider event id evt_1, got %+v", event.ProviderEventID)
	}
}

func TestVerifyAndParseCallbackRejectsBadSignature(t *testing.T) {
	p := NewStripeProvider(StripeConfig{SecretKey: "sk_test", WebhookSecret: "whsec_test"})
	if _, err := p.VerifyAndParseCallback(context.Background(), []byte(`{}`), "t=1,v1=bad"); err == nil {
		t.Fatal("expected invalid signature error")
	}
}

func TestCreateCheckoutSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/checkout/sessions" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form failed: %v", err)
		}
		if r.PostForm.Get("metadata[record_id]") != "rec-1" {
			t.Fatalf("expected record id metadata, got %q", r.PostForm.Get("metadata[record_id]"))
		}
		if r.PostForm.Get("mode") != "payment" {
			t.Fatalf("expected payment mode, got %q", r.PostForm.Get("mode"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_test_1","url":"https://checkout.stripe.example/s/cs_test_1"}`))
	}))
	defer srv.Close()

	p := NewStripeProvider(StripeConfig{SecretKey: "sk_test", APIBaseURL: srv.URL})
	out, err := p.CreateCheckoutSession(context.Background(), &SessionInput{
		RecordID:    "rec-1",
		TierName:    "gold",
		AmountCents: 999,
		Currency:    "USD",
		SuccessURL:  "https://app.example/upgrade/success",
		CancelURL:   "https://app.example/upgrade/cancel",
	})
	if err != nil {
		t.Fatalf("create checkout session failed: %v", err)
	}
	if out.SessionID != "cs_test_1" {
		t.Fatalf("unexpected session id: %s", out.SessionID)
	}
	if out.RedirectURL != "https://checkout.stripe.example/s/cs_test_1" {
		t.Fatalf("unexpected redirect url: %s", out.RedirectURL)
	}
}

func TestGetSessionStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/checkout/sessions/cs_paid":
			_, _ = w.Write([]byte(`{"status":"complete","payment_status":"paid"}`))
		case "/v1/checkout/sessions/cs_open":
			_, _ = w.Write([]byte(`{"status":"open","payment_status":"unpaid"}`))
		case "/v1/checkout/sessions/cs_expired":
			_, _ = w.Write([]byte(`{"status":"expired","payment_status":"unpaid"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"message":"no such session"}}`))
		}
	}))
	defer srv.Close()

	p := NewStripeProvider(StripeConfig{SecretKey: "sk_test", APIBaseURL: srv.URL})

	paid, err := p.GetSessionStatus(context.Background(), "cs_paid")
	if err != nil {
		t.Fatalf("get session status failed: %v", err)
	}
	if !paid.Paid {
		t.Fatal("expected paid session")
	}

	open, err := p.GetSessionStatus(context.Background(), "cs_open")
	if err != nil {
		t.Fatalf("get session status failed: %v", err)
	}
	if open.Paid || open.Expired {
		t.Fatalf("expected open session to be unpaid and unexpired: %+v", open)
	}

	expired, err := p.GetSessionStatus(context.Background(), "cs_expired")
	if err != nil {
		t.Fatalf("get session status failed: %v", err)
	}
	if !expired.Expired {
		t.Fatal("expected expired session")
	}

	if _, err := p.GetSessionStatus(context.Background(), "cs_missing"); err == nil {
		t.Fatal("expected error for unknown session")
	}
}
