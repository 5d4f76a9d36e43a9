//go:build e2e
// +build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-memberships/app/entity"
	"github.com/vibast-solutions/ms-go-memberships/app/token"
	"github.com/vibast-solutions/ms-go-memberships/app/types"
)

const (
	defaultMembershipsHTTPBase = "http://localhost:48080"
	defaultSessionJWTSecret    = "memberships-e2e-secret"
)

func membershipsHTTPBase() string {
	if value := strings.TrimSpace(os.Getenv("MEMBERSHIPS_HTTP_BASE")); value != "" {
		return value
	}
	return defaultMembershipsHTTPBase
}

func sessionJWTSecret() string {
	if value := strings.TrimSpace(os.Getenv("SESSION_JWT_SECRET")); value != "" {
		return value
	}
	return defaultSessionJWTSecret
}

type httpClient struct {
	baseURL string
	client  *http.Client
}

func newHTTPClient(baseURL string) *httpClient {
	return &httpClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *httpClient) doJSON(t *testing.T, method, path string, body any, sessionToken string) (*http.Response, []byte) {
	t.Helper()

	var reqBody *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("json marshal failed: %v", err)
		}
		reqBody = bytes.NewReader(data)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reqBody)
	if err != nil {
		t.Fatalf("new request failed: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-ID", fmt.Sprintf("e2e-http-%d", time.Now().UnixNano()))
	if sessionToken != "" {
		req.Header.Set("Authorization", "Bearer "+sessionToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		t.Fatalf("http request failed: %v", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response failed: %v", err)
	}

	return resp, bodyBytes
}

func waitForHTTP(baseURL string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	client := &http.Client{Timeout: 2 * time.Second}
	for time.Now().Before(deadline) {
		resp, err := client.Get(baseURL + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(250 * time.Millisecond)
	}
	return fmt.Errorf("service at %s not healthy within %s", baseURL, timeout)
}

func issueSessionToken(t *testing.T, email string) string {
	t.Helper()
	tokens := token.NewManager(sessionJWTSecret(), time.Hour)
	signed, _, err := tokens.Issue(entity.IdentityClaim{Email: email, FirstName: "E2E", LastName: "Member"})
	if err != nil {
		t.Fatalf("issue session token failed: %v", err)
	}
	return signed
}

func TestMain(m *testing.M) {
	if err := waitForHTTP(membershipsHTTPBase(), 30*time.Second); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(m.Run())
}

func TestHealth(t *testing.T) {
	client := newHTTPClient(membershipsHTTPBase())
	resp, body := client.doJSON(t, http.MethodGet, "/health", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", resp.StatusCode, body)
	}
}

func TestInitiateRequiresSessionToken(t *testing.T) {
	client := newHTTPClient(membershipsHTTPBase())
	resp, _ := client.doJSON(t, http.MethodPost, "/memberships/upgrades", &types.InitiateUpgradeRequest{Tier: "gold"}, "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestInitiateRejectsUnknownTier(t *testing.T) {
	client := newHTTPClient(membershipsHTTPBase())
	sessionToken := issueSessionToken(t, fmt.Sprintf("e2e-%d@example.com", time.Now().UnixNano()))
	resp, _ := client.doJSON(t, http.MethodPost, "/memberships/upgrades", &types.InitiateUpgradeRequest{Tier: "bronze"}, sessionToken)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestUpgradeLifecyclePendingFlow(t *testing.T) {
	client := newHTTPClient(membershipsHTTPBase())
	email := fmt.Sprintf("e2e-%d@example.com", time.Now().UnixNano())
	sessionToken := issueSessionToken(t, email)

	resp, body := client.doJSON(t, http.MethodPost, "/memberships/upgrades", &types.InitiateUpgradeRequest{Tier: "gold"}, sessionToken)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", resp.StatusCode, body)
	}

	var created types.InitiateUpgradeResponse
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if created.RecordID == "" || created.RedirectURL == "" {
		t.Fatalf("unexpected initiate payload: %+v", created)
	}

	resp, body = client.doJSON(t, http.MethodGet, "/memberships/upgrades/status?record_id="+created.RecordID, nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", resp.StatusCode, body)
	}

	var statusPayload types.UpgradeEnvelopeResponse
	if err := json.Unmarshal(body, &statusPayload); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if statusPayload.Upgrade == nil || statusPayload.Upgrade.Status != types.StatusPending {
		t.Fatalf("expected pending upgrade, got %+v", statusPayload.Upgrade)
	}
	if statusPayload.Upgrade.Email != email {
		t.Fatalf("expected email %s, got %s", email, statusPayload.Upgrade.Email)
	}

	// Confirming before payment keeps the record pending.
	resp, body = client.doJSON(t, http.MethodPost, "/memberships/upgrades/confirm", &types.ResolveConfirmationRequest{RecordID: created.RecordID}, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", resp.StatusCode, body)
	}
	var confirmPayload types.UpgradeEnvelopeResponse
	if err := json.Unmarshal(body, &confirmPayload); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if confirmPayload.Upgrade == nil || confirmPayload.Upgrade.Status != types.StatusPending {
		t.Fatalf("expected pending after unpaid confirm, got %+v", confirmPayload.Upgrade)
	}
}

func TestStatusUnknownRecord(t *testing.T) {
	client := newHTTPClient(membershipsHTTPBase())
	resp, _ := client.doJSON(t, http.MethodGet, "/memberships/upgrades/status?record_id=rec-does-not-exist", nil, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestWebhookRejectsMissingSignature(t *testing.T) {
	client := newHTTPClient(membershipsHTTPBase())
	resp, _ := client.doJSON(t, http.MethodPost, "/webhooks/providers/stripe", map[string]string{"id": "evt_e2e"}, "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}
