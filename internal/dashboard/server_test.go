package dashboard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/Milix-M/DeepReSearch/internal/registry"
	"github.com/Milix-M/DeepReSearch/internal/session"
)

func newTestServer() (*Server, *session.Controller, *registry.Registry) {
	gin.SetMode(gin.TestMode)
	reg := registry.New(nil)
	ctrl := session.New(session.Options{Registry: reg})
	return NewServer(reg, ctrl), ctrl, reg
}

func doGET(t *testing.T, s *Server, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	s.Engine().ServeHTTP(w, req)

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON from %s: %v", path, err)
	}
	return w, body
}

func TestHealthz(t *testing.T) {
	s, _, _ := newTestServer()
	w, body := doGET(t, s, "/healthz")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	data := body["data"].(map[string]any)
	if data["status"] != "ok" {
		t.Errorf("data = %v", data)
	}
}

func TestThreadsView(t *testing.T) {
	s, _, reg := newTestServer()
	reg.Ensure("t1", "調査A", registry.StatusRunning)
	reg.Ensure("t2", "調査B", registry.StatusPendingHuman)

	_, body := doGET(t, s, "/threads")
	data := body["data"].(map[string]any)
	if data["active_count"].(float64) != 1 || data["pending_count"].(float64) != 1 {
		t.Errorf("counts = %v", data)
	}
	if threads := data["threads"].([]any); len(threads) != 2 {
		t.Errorf("threads = %v", threads)
	}
}

func TestMessagesEndpoint(t *testing.T) {
	s, ctrl, _ := newTestServer()
	ctrl.HandleFrame(session.Frame{Type: session.FrameThreadStarted, ThreadID: "t1"})

	w, body := doGET(t, s, "/threads/t1/messages")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	data := body["data"].(map[string]any)
	if data["thread_id"] != "t1" {
		t.Errorf("data = %v", data)
	}

	w, _ = doGET(t, s, "/threads/unknown/messages")
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown thread status = %d", w.Code)
	}
}

func TestInsightEndpoint(t *testing.T) {
	s, ctrl, _ := newTestServer()
	ctrl.HandleFrame(session.Frame{Type: session.FrameThreadStarted, ThreadID: "t1"})
	ctrl.HandleFrame(session.Frame{Type: session.FrameEvent, ThreadID: "t1", Payload: map[string]any{
		"event": "on_tool_start",
		"name":  "web_research",
		"data":  map[string]any{"input": map[string]any{"query": "q", "section": "S"}},
	}})

	w, body := doGET(t, s, "/threads/t1/insight")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	data := body["data"].(map[string]any)
	if page, _ := data["current_page"].(string); page == "" {
		t.Errorf("insight = %v", data)
	}

	w, _ = doGET(t, s, "/threads/none/insight")
	if w.Code != http.StatusNotFound {
		t.Errorf("missing insight status = %d", w.Code)
	}
}
