package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"livedirs/internal/metrics"
	"livedirs/internal/tree"
)

func newTestServer(t *testing.T, options Options) (*httptest.Server, *tree.Model) {
	t.Helper()
	if options.Registry == nil {
		options.Registry = &metrics.Registry{}
	}
	model := tree.NewModel(context.Background(), tree.Options{Registry: options.Registry})
	t.Cleanup(model.Close)
	options.Model = model

	ts := httptest.NewServer(New(options).Routes())
	t.Cleanup(ts.Close)

	if _, err := model.AddTopLevelDirectory("/srv/data"); err != nil {
		t.Fatalf("add root: %v", err)
	}
	return ts, model
}

func wsURL(ts *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + path
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readPayload(t *testing.T, conn *websocket.Conn) editPayload {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(3 * time.Second)); err != nil {
		t.Fatalf("set deadline: %v", err)
	}
	var payload editPayload
	if err := conn.ReadJSON(&payload); err != nil {
		t.Fatalf("read payload: %v", err)
	}
	return payload
}

func TestEditsAreStreamed(t *testing.T) {
	ts, model := newTestServer(t, Options{})
	conn := dial(t, wsURL(ts, "/api/edits"))

	model.AddFile("/srv/data/report.txt", "writer-7", time.Unix(100, 0))

	payload := readPayload(t, conn)
	if payload.Kind != string(tree.EditCreation) {
		t.Fatalf("expected creation, got %s", payload.Kind)
	}
	if payload.Path != "/srv/data/report.txt" || payload.Base != "/srv/data" {
		t.Fatalf("unexpected coordinates: %+v", payload)
	}
	if payload.Origin != "writer-7" {
		t.Fatalf("unexpected origin: %s", payload.Origin)
	}
	if payload.Timestamp.IsZero() {
		t.Fatal("missing timestamp")
	}
}

func TestKindFilterNarrowsStream(t *testing.T) {
	ts, model := newTestServer(t, Options{})
	conn := dial(t, wsURL(ts, "/api/edits?kind=deletion"))

	model.AddFile("/srv/data/a.txt", nil, time.Unix(100, 0))
	model.Delete("/srv/data/a.txt", nil)

	payload := readPayload(t, conn)
	if payload.Kind != string(tree.EditDeletion) {
		t.Fatalf("filter leaked %s edit", payload.Kind)
	}
}

func TestUnknownKindIsRejected(t *testing.T) {
	ts, _ := newTestServer(t, Options{})

	response, err := http.Get(ts.URL + "/api/edits?kind=bogus")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", response.StatusCode)
	}
}

func TestAuthTokenIsEnforced(t *testing.T) {
	ts, _ := newTestServer(t, Options{AuthToken: "secret"})

	response, err := http.Get(ts.URL + "/api/metrics")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	response.Body.Close()
	if response.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", response.StatusCode)
	}

	response, err = http.Get(ts.URL + "/api/metrics?token=secret")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	response.Body.Close()
	if response.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", response.StatusCode)
	}

	if _, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/api/edits"), nil); err == nil {
		t.Fatal("expected websocket dial without token to fail")
	}
	conn := dial(t, wsURL(ts, "/api/edits?token=secret"))
	conn.Close()
}

func TestHealthEndpoint(t *testing.T) {
	ts, _ := newTestServer(t, Options{AuthToken: "secret"})

	response, err := http.Get(ts.URL + "/api/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	response.Body.Close()
	if response.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", response.StatusCode)
	}
}
