package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vovakirdan/wiremsg-server/internal/auth"
	"github.com/vovakirdan/wiremsg-server/internal/config"
	"github.com/vovakirdan/wiremsg-server/internal/core"
	"github.com/vovakirdan/wiremsg-server/internal/log"
	"github.com/vovakirdan/wiremsg-server/internal/proto"
	"github.com/vovakirdan/wiremsg-server/internal/service/contacts"
	"github.com/vovakirdan/wiremsg-server/internal/service/groups"
	"github.com/vovakirdan/wiremsg-server/internal/service/messaging"
	"github.com/vovakirdan/wiremsg-server/internal/store"
	"github.com/vovakirdan/wiremsg-server/internal/store/sqlite"
)

// testEnv is the full HTTP stack over an in-memory SQLite store.
type testEnv struct {
	ts       *httptest.Server
	server   *http.Server
	store    store.Store
	registry *core.Registry
	auth     *auth.Service
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.JWTSecret = "test-secret"
	cfg.RateLimitRPS = 0
	if mutate != nil {
		mutate(&cfg)
	}

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	logger := log.Nop()
	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      time.Hour,
	})

	promReg := prometheus.NewRegistry()
	registry := core.NewRegistry()
	metrics := core.NewMetrics(promReg, registry)

	roster, err := core.NewCachedRoster(st, cfg.RosterCacheSize, logger)
	if err != nil {
		t.Fatalf("roster: %v", err)
	}
	router := core.NewRouter(registry, roster, core.RouterOptions{Workers: 2, Backlog: 64}, metrics, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		router.Run(ctx)
		close(done)
	}()

	groupSvc := groups.New(st, roster)
	svc := Services{
		Auth:      authService,
		Contacts:  contacts.New(st),
		Groups:    groupSvc,
		Messaging: messaging.New(st, groupSvc, router, cfg.MaxMessageBytes, logger),
		Registry:  registry,
		Gatherer:  promReg,
	}

	server := NewServer(svc, &cfg, logger)
	ts := httptest.NewUnstartedServer(server.Handler)
	ts.Config = server
	ts.Start()
	t.Cleanup(func() {
		ts.Close()
		cancel()
		<-done
		_ = st.Close()
	})

	return &testEnv{ts: ts, server: server, store: st, registry: registry, auth: authService}
}

// register creates a user and returns its bearer token.
func (e *testEnv) register(t *testing.T, username string) string {
	t.Helper()

	resp, body := e.do(t, http.MethodPost, "/api/register", "", CredentialsRequest{Username: username, Password: "password123"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register %s: status %d: %s", username, resp.StatusCode, body)
	}

	var out AuthResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode auth response: %v", err)
	}
	return out.Token
}

// do sends a JSON request and returns the response with its fully read body.
func (e *testEnv) do(t *testing.T, method, path, token string, payload any) (*http.Response, []byte) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, e.ts.URL+path, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, raw
}

func (e *testEnv) wsURL(query string) string {
	return "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/ws?" + query
}

// dial opens a live connection for username and waits until it is registered.
func (e *testEnv) dial(t *testing.T, username string) *websocket.Conn {
	t.Helper()

	prev, _ := e.registry.Resolve(username)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, resp, err := websocket.Dial(ctx, e.wsURL("username="+username), nil)
	if err != nil {
		t.Fatalf("dial %s: %v", username, err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.CloseNow() })

	waitFor(t, func() bool {
		current, ok := e.registry.Resolve(username)
		return ok && current != prev
	})
	return conn
}

// readMessage reads the next pushed message. A read timeout closes the connection,
// so absence is checked by ordering against a later message instead.
func readMessage(t *testing.T, conn *websocket.Conn) proto.Message {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	typ, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read push: %v", err)
	}
	if typ != websocket.MessageText {
		t.Fatalf("expected text frame, got %v", typ)
	}

	var msg proto.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode push %q: %v", data, err)
	}
	return msg
}

func decodeMessage(t *testing.T, body []byte) proto.Message {
	t.Helper()

	var msg proto.Message
	if err := json.Unmarshal(body, &msg); err != nil {
		t.Fatalf("decode message %q: %v", body, err)
	}
	return msg
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func decodeJSON(t *testing.T, body []byte, out any) {
	t.Helper()

	if err := json.Unmarshal(body, out); err != nil {
		t.Fatalf("decode %q: %v", body, err)
	}
}

func containsID(t *testing.T, body []byte, id int64) bool {
	t.Helper()

	var msgs []proto.Message
	decodeJSON(t, body, &msgs)
	for _, m := range msgs {
		if m.ID == id {
			return true
		}
	}
	return false
}
