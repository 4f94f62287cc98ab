package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"skillforge/internal/checkout"
	"skillforge/internal/community"
	"skillforge/internal/config"
	"skillforge/internal/gamification"
	"skillforge/internal/kv"
	"skillforge/internal/moderation"
	"skillforge/internal/notify"
	"skillforge/internal/profile"
	"skillforge/internal/session"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	store := kv.NewMemory()
	log := zap.NewNop().Sugar()
	notifier := notify.NewCenter(0)
	t.Cleanup(notifier.Close)

	profiles := profile.NewCache(nil, store, log, 50*time.Millisecond)
	resolver := session.NewResolver(nil, store, profiles, notifier, log, session.Timeouts{
		Probe:      50 * time.Millisecond,
		Session:    50 * time.Millisecond,
		Auth:       100 * time.Millisecond,
		LocalDelay: time.Millisecond,
		SessionTTL: time.Hour,
	})

	cfg := config.Config{AdminEmails: "admin@skillforge.dev"}
	srv := NewServer(
		cfg,
		resolver,
		profiles,
		gamification.NewService(store, log),
		community.NewService(store, log),
		moderation.NewService(store, notifier, log),
		notifier,
		checkout.NewClient("", time.Second),
		log,
	)

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, url, token string, body interface{}) (int, map[string]interface{}) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	var payload map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.StatusCode, payload
}

func signUp(t *testing.T, ts *httptest.Server, email string) string {
	t.Helper()

	status, payload := doJSON(t, http.MethodPost, ts.URL+"/auth/signup", "", map[string]string{
		"email":    email,
		"password": "secret1",
		"fullName": "Test User",
	})
	if status != http.StatusCreated {
		t.Fatalf("sign-up status = %d, payload = %v", status, payload)
	}
	sess, ok := payload["session"].(map[string]interface{})
	if !ok {
		t.Fatalf("sign-up payload missing session: %v", payload)
	}
	token, _ := sess["accessToken"].(string)
	if token == "" {
		t.Fatal("sign-up returned empty access token")
	}
	return token
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	status, payload := doJSON(t, http.MethodGet, ts.URL+"/health", "", nil)
	if status != http.StatusOK || payload["status"] != "ok" {
		t.Fatalf("health = %d %v", status, payload)
	}
}

func TestSignUpThenProfile(t *testing.T) {
	ts := newTestServer(t)
	token := signUp(t, ts, "dev@example.com")

	status, payload := doJSON(t, http.MethodGet, ts.URL+"/profile", token, nil)
	if status != http.StatusOK {
		t.Fatalf("profile status = %d, payload = %v", status, payload)
	}
	if payload["email"] != "dev@example.com" {
		t.Fatalf("profile email = %v", payload["email"])
	}
}

func TestSignUpValidation(t *testing.T) {
	ts := newTestServer(t)

	status, payload := doJSON(t, http.MethodPost, ts.URL+"/auth/signup", "", map[string]string{
		"email":    "short@example.com",
		"password": "abc",
	})
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d", status)
	}
	if payload["error"] != "password_too_short" {
		t.Fatalf("error code = %v", payload["error"])
	}
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t)

	status, _ := doJSON(t, http.MethodGet, ts.URL+"/xp", "", nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("unauthenticated /xp status = %d", status)
	}

	status, _ = doJSON(t, http.MethodGet, ts.URL+"/xp", "bogus-token", nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("bad-token /xp status = %d", status)
	}
}

func TestProgressToggle(t *testing.T) {
	ts := newTestServer(t)
	token := signUp(t, ts, "dev@example.com")

	status, step := doJSON(t, http.MethodPost, ts.URL+"/progress/beginner/3/toggle", token, nil)
	if status != http.StatusOK {
		t.Fatalf("toggle status = %d, payload = %v", status, step)
	}
	if step["completed"] != true {
		t.Fatalf("step not completed after toggle: %v", step)
	}

	status, _ = doJSON(t, http.MethodPost, ts.URL+"/progress/nonsense/3/toggle", token, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("bad path type status = %d", status)
	}
}

func TestCompleteGuideAwardsOnce(t *testing.T) {
	ts := newTestServer(t)
	token := signUp(t, ts, "dev@example.com")

	status, first := doJSON(t, http.MethodPost, ts.URL+"/guides/complete", token, map[string]int{"guideId": 7})
	if status != http.StatusOK || first["awarded"] != true {
		t.Fatalf("first completion = %d %v", status, first)
	}

	status, second := doJSON(t, http.MethodPost, ts.URL+"/guides/complete", token, map[string]int{"guideId": 7})
	if status != http.StatusOK || second["awarded"] != false {
		t.Fatalf("repeat completion = %d %v", status, second)
	}

	status, xp := doJSON(t, http.MethodGet, ts.URL+"/xp", token, nil)
	if status != http.StatusOK {
		t.Fatalf("xp status = %d", status)
	}
	if xp["totalXP"] != float64(50) {
		t.Fatalf("totalXP = %v, want 50", xp["totalXP"])
	}
}

func TestAdminGate(t *testing.T) {
	ts := newTestServer(t)

	token := signUp(t, ts, "user@example.com")
	status, _ := doJSON(t, http.MethodGet, ts.URL+"/admin/queue", token, nil)
	if status != http.StatusForbidden {
		t.Fatalf("non-admin queue status = %d", status)
	}

	// Local sign-in with a different email replaces the stored mock
	// identity, so the admin gets a fresh token.
	status, payload := doJSON(t, http.MethodPost, ts.URL+"/auth/signin", "", map[string]string{
		"email":    "admin@skillforge.dev",
		"password": "secret1",
	})
	if status != http.StatusOK {
		t.Fatalf("admin sign-in status = %d, payload = %v", status, payload)
	}
	adminToken := payload["session"].(map[string]interface{})["accessToken"].(string)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/admin/queue", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("admin queue: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin queue status = %d", resp.StatusCode)
	}
}

func TestCheckoutUnavailable(t *testing.T) {
	ts := newTestServer(t)
	token := signUp(t, ts, "dev@example.com")

	status, payload := doJSON(t, http.MethodPost, ts.URL+"/checkout", token, map[string]string{
		"price_id": "price_123",
	})
	if status != http.StatusServiceUnavailable {
		t.Fatalf("checkout status = %d, payload = %v", status, payload)
	}
}

func TestCommunityPostAndFeed(t *testing.T) {
	ts := newTestServer(t)
	token := signUp(t, ts, "dev@example.com")

	status, post := doJSON(t, http.MethodPost, ts.URL+"/community/posts", token, map[string]string{
		"title": "Hello",
		"body":  "First post",
	})
	if status != http.StatusCreated {
		t.Fatalf("create post status = %d, payload = %v", status, post)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/community/feed", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	defer resp.Body.Close()
	var feed []map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&feed); err != nil {
		t.Fatalf("decode feed: %v", err)
	}
	if len(feed) != 1 {
		t.Fatalf("feed length = %d, want 1", len(feed))
	}
}

func TestSessionEndpointRedactsTokens(t *testing.T) {
	ts := newTestServer(t)
	token := signUp(t, ts, "dev@example.com")

	status, payload := doJSON(t, http.MethodGet, ts.URL+"/auth/session", "", nil)
	if status != http.StatusOK {
		t.Fatalf("session status = %d", status)
	}
	sess, ok := payload["session"].(map[string]interface{})
	if !ok {
		t.Fatalf("payload missing session: %v", payload)
	}
	if sess["accessToken"] != "" {
		t.Fatalf("anonymous caller received access token")
	}

	status, payload = doJSON(t, http.MethodGet, ts.URL+"/auth/session", token, nil)
	if status != http.StatusOK {
		t.Fatalf("authed session status = %d", status)
	}
	sess = payload["session"].(map[string]interface{})
	if sess["accessToken"] != token {
		t.Fatalf("token holder should see their own token, got %v", sess["accessToken"])
	}
}

func TestNotificationsRequireAuth(t *testing.T) {
	ts := newTestServer(t)

	status, _ := doJSON(t, http.MethodGet, ts.URL+"/notifications", "", nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("unauthenticated list status = %d", status)
	}
	status, _ = doJSON(t, http.MethodDelete, ts.URL+"/notifications/some-id", "", nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("unauthenticated dismiss status = %d", status)
	}

	token := signUp(t, ts, "dev@example.com")
	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/notifications", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("authed list status = %d", resp.StatusCode)
	}
	var notifications []map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&notifications); err != nil {
		t.Fatalf("decode notifications: %v", err)
	}
	if len(notifications) == 0 {
		t.Fatalf("expected the sign-up notification to be listed")
	}
}

func TestSignOutInvalidatesToken(t *testing.T) {
	ts := newTestServer(t)
	token := signUp(t, ts, "dev@example.com")

	status, _ := doJSON(t, http.MethodPost, ts.URL+"/auth/signout", token, nil)
	if status != http.StatusOK {
		t.Fatalf("sign-out status = %d", status)
	}

	status, _ = doJSON(t, http.MethodGet, ts.URL+"/profile", token, nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("post-sign-out profile status = %d", status)
	}
}
