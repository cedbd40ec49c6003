package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// fakeAPI is a minimal subscription backend holding one user's subscription.
type fakeAPI struct {
	mu  sync.Mutex
	sub map[string]any

	registered int
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.URL.Path == "/api/auth/login" {
		var req map[string]string
		json.NewDecoder(r.Body).Decode(&req)
		if req["password"] != "x" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"message":"Invalid email or password"}`))
			return
		}
		w.Write([]byte(`{"data":{"token":"T","email":"` + req["email"] + `"}}`))
		return
	}
	if r.URL.Path == "/api/auth/register" {
		f.registered++
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data":{}}`))
		return
	}
	if r.URL.Path == "/api/plans" {
		w.Write([]byte(`{"data":[{"id":1,"name":"FREE","price":0},{"id":2,"name":"BASIC","price":499,"features":["Bill reminders"]},{"id":3,"name":"PREMIUM","price":999}]}`))
		return
	}

	if r.Header.Get("Authorization") != "Bearer T" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/api/subscriptions":
		if f.sub == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(f.sub)
	case r.Method == http.MethodPost && r.URL.Path == "/api/subscriptions/subscribe/2":
		f.sub = map[string]any{"planId": 2, "planName": "BASIC", "status": "ACTIVE", "startDate": "2025-01-01", "expiryDate": "2099-01-01", "autoRenewal": true}
		json.NewEncoder(w).Encode(f.sub)
	case r.Method == http.MethodPut && r.URL.Path == "/api/subscriptions/cancel":
		if f.sub == nil {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"message":"No active subscription"}`))
			return
		}
		f.sub["status"] = "CANCELLED"
		f.sub["autoRenewal"] = false
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeAPI) registrations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.registered
}

type cli struct {
	t   *testing.T
	api *fakeAPI
}

func (c cli) run(stdin string, args ...string) (code int, stdout, stderr string) {
	c.t.Helper()
	var out, errOut bytes.Buffer
	code = run(context.Background(), args, strings.NewReader(stdin), &out, &errOut)
	return code, out.String(), errOut.String()
}

func setupCLI(t *testing.T) cli {
	t.Helper()
	api := &fakeAPI{}
	server := httptest.NewServer(api)
	t.Cleanup(server.Close)

	t.Setenv("SUBTRACK_API_URL", server.URL+"/api")
	t.Setenv("SUBTRACK_DB_PATH", filepath.Join(t.TempDir(), "subtrack.db"))
	t.Setenv("SUBTRACK_LOG_LEVEL", "error")
	t.Setenv("SUBTRACK_STORE_KEY", "")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	return cli{t: t, api: api}
}

func TestCLIFlow(t *testing.T) {
	c := setupCLI(t)

	code, _, stderr := c.run("", "status")
	if code != 1 || !strings.Contains(stderr, "subtrack login") {
		t.Fatalf("status before login: code %d, stderr %q", code, stderr)
	}

	code, _, stderr = c.run("", "login", "-e", "a@b.com", "-p", "wrong")
	if code != 1 || !strings.Contains(stderr, "Invalid email or password") {
		t.Fatalf("bad login: code %d, stderr %q", code, stderr)
	}

	code, stdout, stderr := c.run("", "login", "--email", "a@b.com", "--password", "x")
	if code != 0 || !strings.Contains(stdout, "Signed in as a@b.com") {
		t.Fatalf("login: code %d, stdout %q, stderr %q", code, stdout, stderr)
	}

	// Each run is a new process; the session comes back from disk.
	code, stdout, _ = c.run("", "whoami")
	if code != 0 || !strings.Contains(stdout, "a@b.com") || !strings.Contains(stdout, "USER") {
		t.Fatalf("whoami: code %d, stdout %q", code, stdout)
	}

	code, stdout, _ = c.run("", "status")
	if code != 0 || !strings.Contains(stdout, "No subscription.") || !strings.Contains(stdout, "subtrack subscribe") {
		t.Fatalf("status: code %d, stdout %q", code, stdout)
	}

	code, stdout, stderr = c.run("", "subscribe", "2")
	if code != 0 || !strings.Contains(stdout, "BASIC") || !strings.Contains(stdout, "ACTIVE") {
		t.Fatalf("subscribe: code %d, stdout %q, stderr %q", code, stdout, stderr)
	}

	code, stdout, _ = c.run("n\n", "cancel")
	if code != 0 || !strings.Contains(stdout, "Are you sure") || !strings.Contains(stdout, "Cancellation aborted.") {
		t.Fatalf("declined cancel: code %d, stdout %q", code, stdout)
	}

	code, stdout, _ = c.run("", "status")
	if !strings.Contains(stdout, "ACTIVE") || !strings.Contains(stdout, "subtrack cancel") {
		t.Fatalf("status after declined cancel: code %d, stdout %q", code, stdout)
	}

	code, stdout, stderr = c.run("", "cancel", "--yes")
	if code != 0 || !strings.Contains(stdout, "CANCELLED") || !strings.Contains(stdout, "renew") {
		t.Fatalf("cancel: code %d, stdout %q, stderr %q", code, stdout, stderr)
	}

	code, stdout, _ = c.run("", "logout")
	if code != 0 || !strings.Contains(stdout, "Signed out.") {
		t.Fatalf("logout: code %d, stdout %q", code, stdout)
	}

	code, _, _ = c.run("", "whoami")
	if code != 1 {
		t.Fatalf("whoami after logout: code %d", code)
	}
}

func TestCLIPlans(t *testing.T) {
	c := setupCLI(t)

	code, stdout, _ := c.run("", "plans")
	if code != 0 {
		t.Fatalf("plans: code %d", code)
	}
	for _, want := range []string{"FREE", "Free", "499/month", "PREMIUM *", "Bill reminders"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("plans output missing %q:\n%s", want, stdout)
		}
	}

	_, stdout, _ = c.run("", "plans", "--yearly")
	for _, want := range []string{"414/month", "4,970 yearly", "9,950 yearly", "saves 17%"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("yearly output missing %q:\n%s", want, stdout)
		}
	}
}

func TestCLICancelWithoutSubscription(t *testing.T) {
	c := setupCLI(t)
	c.run("", "login", "-e", "a@b.com", "-p", "x")

	code, _, stderr := c.run("", "cancel", "-y")
	if code != 1 || !strings.Contains(stderr, "No active subscription") {
		t.Errorf("cancel: code %d, stderr %q", code, stderr)
	}
}

func TestCLIUsageErrors(t *testing.T) {
	c := setupCLI(t)

	if code, _, stderr := c.run("", "frobnicate"); code != 2 || !strings.Contains(stderr, "unknown command") {
		t.Errorf("unknown command: code %d, stderr %q", code, stderr)
	}
	if code, _, _ := c.run(""); code != 2 {
		t.Errorf("no command: code %d", code)
	}
	if code, _, stderr := c.run("", "subscribe", "abc"); code != 1 || !strings.Contains(stderr, "invalid plan id") {
		t.Errorf("bad plan id: code %d, stderr %q", code, stderr)
	}
}

func TestCLILoginPrompts(t *testing.T) {
	c := setupCLI(t)

	code, stdout, stderr := c.run("a@b.com\nx\n", "login")
	if code != 0 || !strings.Contains(stdout, "Email: ") || !strings.Contains(stdout, "Signed in as a@b.com") {
		t.Errorf("login: code %d, stdout %q, stderr %q", code, stdout, stderr)
	}
}

func TestCLIRegister(t *testing.T) {
	c := setupCLI(t)

	code, stdout, stderr := c.run("alice\na@b.com\nx\nx\n", "register")
	if code != 0 || !strings.Contains(stdout, "Confirm password: ") || !strings.Contains(stdout, "Account created. Signed in as a@b.com.") {
		t.Fatalf("register: code %d, stdout %q, stderr %q", code, stdout, stderr)
	}
	if c.api.registrations() != 1 {
		t.Errorf("register requests = %d, want 1", c.api.registrations())
	}
}

func TestCLIRegisterPasswordMismatch(t *testing.T) {
	c := setupCLI(t)

	code, _, stderr := c.run("", "register", "-n", "alice", "-e", "a@b.com", "-p", "x", "--confirm-password", "y")
	if code != 1 || !strings.Contains(stderr, "passwords do not match") {
		t.Errorf("flags: code %d, stderr %q", code, stderr)
	}

	code, _, stderr = c.run("alice\na@b.com\nx\nxx\n", "register")
	if code != 1 || !strings.Contains(stderr, "passwords do not match") {
		t.Errorf("prompts: code %d, stderr %q", code, stderr)
	}

	if c.api.registrations() != 0 {
		t.Errorf("register requests = %d, want 0", c.api.registrations())
	}
}

func TestPromptSecretTerminal(t *testing.T) {
	var out bytes.Buffer
	var gotFd int
	a := &app{
		in:         bufio.NewReader(strings.NewReader("")),
		out:        &out,
		passwordFd: 7,
		readPassword: func(fd int) ([]byte, error) {
			gotFd = fd
			return []byte("hunter2"), nil
		},
	}

	secret, err := a.promptSecret("Password", "")
	if err != nil {
		t.Fatal(err)
	}
	if secret != "hunter2" {
		t.Errorf("secret = %q, want hunter2", secret)
	}
	if gotFd != 7 {
		t.Errorf("read from fd %d, want 7", gotFd)
	}
	if out.String() != "Password: \n" {
		t.Errorf("output = %q, want only the label", out.String())
	}

	// A flag value skips the prompt.
	out.Reset()
	if secret, _ := a.promptSecret("Password", "flag"); secret != "flag" || out.Len() != 0 {
		t.Errorf("flag value: secret %q, output %q", secret, out.String())
	}
}

func TestPromptSecretPiped(t *testing.T) {
	var out bytes.Buffer
	a := &app{
		in:         bufio.NewReader(strings.NewReader("hunter2\n")),
		out:        &out,
		passwordFd: -1,
		readPassword: func(int) ([]byte, error) {
			t.Fatal("terminal read on piped input")
			return nil, nil
		},
	}

	secret, err := a.promptSecret("Password", "")
	if err != nil || secret != "hunter2" {
		t.Fatalf("secret %q, err %v", secret, err)
	}
}
