package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math/rand"
	"net"
	"net/http"
	"testing"
	"time"

	"tidewater/internal/config"
	"tidewater/internal/db"
	"tidewater/internal/engine"
	"tidewater/internal/migrate"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	cfg := config.Default("test-world")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	e.Now = func() time.Time { return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC) }
	e.Rand = rand.New(rand.NewSource(42))
	if err := e.SeedWorld(context.Background()); err != nil {
		t.Fatalf("seed world: %v", err)
	}
	handler, err := New(Config{Engine: e, BasePath: "/v0", Auth: AuthConfig{JWTSecret: testSecret}})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func authHeaders(t *testing.T, actorID string, roles ...string) map[string]string {
	t.Helper()
	token, err := signToken(testSecret, actorID, roles)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func createActor(t *testing.T, srv *testServer, name string) ActorResponse {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/actors", map[string]any{
		"name": name,
	}, authHeaders(t, "op", RoleOperator))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create actor status %d: %s", res.StatusCode, string(data))
	}
	var a ActorResponse
	if err := json.Unmarshal(data, &a); err != nil {
		t.Fatalf("unmarshal actor: %v", err)
	}
	return a
}

func TestAuthRequired(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d", res.StatusCode)
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/actors", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated list status %d, want 401", res.StatusCode)
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/actors", nil, map[string]string{"Authorization": "Bearer not-a-token"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad token status %d, want 401", res.StatusCode)
	}
}

func TestActorRegistrationAndInventory(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	a := createActor(t, srv, "alice")
	if a.MoneyShillings != 10 || a.Health != 5 {
		t.Fatalf("starting state: %+v", a)
	}

	// Registration is an operator call; players cannot self-register.
	res, _ := doJSON(t, client, http.MethodPost, srv.URL+"/v0/actors", map[string]any{
		"name": "mallory",
	}, authHeaders(t, a.ID))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("player create status %d, want 403", res.StatusCode)
	}

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/actors/"+a.ID+"/inventory", nil, authHeaders(t, a.ID))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("inventory status %d: %s", res.StatusCode, string(data))
	}
	var inv []InventoryEntryResponse
	if err := json.Unmarshal(data, &inv); err != nil {
		t.Fatalf("unmarshal inventory: %v", err)
	}
	if len(inv) != 1 || inv[0].ItemKey != "chestnut" || inv[0].Quantity != 2 {
		t.Fatalf("starting pantry: %+v", inv)
	}
}

func TestScheduleConflictOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	a := createActor(t, srv, "alice")
	headers := authHeaders(t, a.ID)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/actors/"+a.ID+"/actions", map[string]any{
		"action": "gather_chestnuts",
	}, headers)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("schedule status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/actors/"+a.ID+"/actions", map[string]any{
		"action": "work_for_king",
	}, headers)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("second schedule status %d, want 409: %s", res.StatusCode, string(data))
	}

	// One actor cannot queue work for another.
	b := createActor(t, srv, "bob")
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/actors/"+b.ID+"/actions", map[string]any{
		"action": "gather_chestnuts",
	}, headers)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("cross-actor schedule status %d, want 403: %s", res.StatusCode, string(data))
	}
}

func TestSettleRequiresOperator(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	a := createActor(t, srv, "alice")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/settle", map[string]any{}, authHeaders(t, a.ID))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("player settle status %d, want 403: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/settle", map[string]any{}, authHeaders(t, "op", RoleOperator))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("operator settle status %d: %s", res.StatusCode, string(data))
	}
	var status StatusResponse
	if err := json.Unmarshal(data, &status); err != nil {
		t.Fatalf("unmarshal status: %v", err)
	}
	if status.Watermark != status.CurrentTurn {
		t.Fatalf("watermark %d, want current turn %d", status.Watermark, status.CurrentTurn)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/settle", map[string]any{
		"turn": status.CurrentTurn + 10,
	}, authHeaders(t, "op", RoleOperator))
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("future settle status %d, want 400: %s", res.StatusCode, string(data))
	}
}

func TestMarketFlowOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	seller := createActor(t, srv, "seller")
	buyer := createActor(t, srv, "buyer")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/listings", map[string]any{
		"item_key":        "chestnut",
		"quantity":        2,
		"price_shillings": 3,
	}, authHeaders(t, seller.ID))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create listing status %d: %s", res.StatusCode, string(data))
	}
	var listing ListingResponse
	if err := json.Unmarshal(data, &listing); err != nil {
		t.Fatalf("unmarshal listing: %v", err)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/listings/"+listing.ID+"/buy", map[string]any{
		"quantity": 1,
	}, authHeaders(t, buyer.ID))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("buy status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/actors/"+buyer.ID, nil, authHeaders(t, buyer.ID))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get buyer status %d", res.StatusCode)
	}
	var gotBuyer ActorResponse
	_ = json.Unmarshal(data, &gotBuyer)
	if gotBuyer.MoneyShillings != 7 {
		t.Fatalf("buyer purse = %d, want 7", gotBuyer.MoneyShillings)
	}
}

func TestAPIKeyRoundTrip(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	a := createActor(t, srv, "alice")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/actors/"+a.ID+"/keys", map[string]any{
		"name": "cli",
	}, authHeaders(t, a.ID))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create key status %d: %s", res.StatusCode, string(data))
	}
	var key APIKeyResponse
	if err := json.Unmarshal(data, &key); err != nil {
		t.Fatalf("unmarshal key: %v", err)
	}
	if key.Key == "" {
		t.Fatal("create response missing raw key")
	}

	// The raw key authenticates as the actor.
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"X-Api-Key": key.Key})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me status %d: %s", res.StatusCode, string(data))
	}
	var who WhoAmIResponse
	_ = json.Unmarshal(data, &who)
	if who.ActorID != a.ID || who.Source != "api_key" {
		t.Fatalf("whoami: %+v", who)
	}

	res, _ = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/actors/"+a.ID+"/keys/"+key.ID, nil, authHeaders(t, a.ID))
	if res.StatusCode != http.StatusNoContent && res.StatusCode != http.StatusOK {
		t.Fatalf("delete key status %d", res.StatusCode)
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"X-Api-Key": key.Key})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("revoked key status %d, want 401", res.StatusCode)
	}
}

func TestEventFeedPagination(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	for _, name := range []string{"a", "b", "c"} {
		createActor(t, srv, name)
	}

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/events?limit=2", nil, authHeaders(t, "op", RoleOperator))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events status %d: %s", res.StatusCode, string(data))
	}
	var page paginatedEvents
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatalf("unmarshal page: %v", err)
	}
	if len(page.Items) != 2 || page.NextCursor == "" {
		t.Fatalf("first page: %d items, cursor %q", len(page.Items), page.NextCursor)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/events?limit=2&cursor="+page.NextCursor, nil, authHeaders(t, "op", RoleOperator))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("second page status %d", res.StatusCode)
	}
	var next paginatedEvents
	_ = json.Unmarshal(data, &next)
	if len(next.Items) == 0 {
		t.Fatal("second page empty")
	}
	if next.Items[0].ID >= page.Items[1].ID {
		t.Fatalf("pages overlap: %d >= %d", next.Items[0].ID, page.Items[1].ID)
	}
}
