package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/connection-hub/backend/internal/db"
	"github.com/connection-hub/backend/internal/repository"
	"github.com/connection-hub/backend/internal/runtime"
)

func newTestRouter(t *testing.T) (*gin.Engine, *runtime.Runtime) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	database, err := db.NewTestDB()
	if err != nil {
		t.Fatalf("failed to init test db: %v", err)
	}

	rt := runtime.New(repository.NewAttachmentRepository(database), runtime.Config{
		HibernateAfter: time.Hour,
	})

	handler := NewHubHandler(repository.NewInstanceRepository(database), rt)

	r := gin.New()
	api := r.Group("/api")
	handler.RegisterRoutes(api)

	t.Cleanup(func() {
		rt.Close()
		database.Close()
	})

	return r, rt
}

// TestConnectRequiresUpgradeHeader verifies a plain GET is answered with
// 426 Upgrade Required.
func TestConnectRequiresUpgradeHeader(t *testing.T) {
	router, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/hubs/chat/connect", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUpgradeRequired {
		t.Fatalf("expected 426, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "upgrade") && !strings.Contains(w.Body.String(), "Upgrade") {
		t.Fatalf("expected plain-text upgrade hint, got %q", w.Body.String())
	}
}

// TestConnectRequiresGet verifies a non-GET upgrade request is answered with
// 400.
func TestConnectRequiresGet(t *testing.T) {
	router, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/hubs/chat/connect", nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

// TestConnectAndExchange upgrades a real client through the full router and
// exchanges a message.
func TestConnectAndExchange(t *testing.T) {
	router, _ := newTestRouter(t)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/hubs/chat/connect"
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { ws.Close() })

	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("expected 101, got %d", resp.StatusCode)
	}

	if err := ws.WriteMessage(websocket.TextMessage, []byte("hi")); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if !strings.Contains(string(payload), "[Hub] message: hi, from: ") {
		t.Fatalf("unexpected reply: %q", payload)
	}
	if !strings.Contains(string(payload), "Total connections: 1") {
		t.Fatalf("unexpected connection count: %q", payload)
	}
}

// TestHubAdminEndpoints verifies the listing, detail, and hibernate admin
// surface.
func TestHubAdminEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/hubs/chat/connect"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { ws.Close() })

	// List
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/hubs", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("list failed: %d", w.Code)
	}
	var hubs []HubResponse
	if err := json.Unmarshal(w.Body.Bytes(), &hubs); err != nil {
		t.Fatalf("bad list body: %v", err)
	}
	if len(hubs) != 1 || hubs[0].Name != "chat" || hubs[0].Connections != 1 {
		t.Fatalf("unexpected hub list: %+v", hubs)
	}

	// Detail
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/hubs/chat", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("detail failed: %d", w.Code)
	}
	var hub HubResponse
	if err := json.Unmarshal(w.Body.Bytes(), &hub); err != nil {
		t.Fatalf("bad detail body: %v", err)
	}
	if len(hub.SessionIDs) != 1 {
		t.Fatalf("expected 1 session id, got %v", hub.SessionIDs)
	}

	// Unknown hub
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/hubs/ghost", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown hub, got %d", w.Code)
	}

	// Hibernate
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/hubs/chat/hibernate", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("hibernate failed: %d", w.Code)
	}
	if err := json.Unmarshal(w.Body.Bytes(), &hub); err != nil {
		t.Fatalf("bad hibernate body: %v", err)
	}
	if !hub.Hibernated {
		t.Fatalf("expected hibernated hub, got %+v", hub)
	}
	if hub.Connections != 1 {
		t.Fatalf("hibernation must keep connections, got %d", hub.Connections)
	}
}
