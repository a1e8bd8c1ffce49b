package restapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	apperrors "github.com/Milix-M/DeepReSearch/pkg/errors"
)

func testServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL, 2*time.Second)
}

func TestHealth(t *testing.T) {
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok","timestamp":"2025-06-01T12:00:00Z","details":{"workflow":"ready"}}`))
	})

	h, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if h.Status != "ok" || h.Details["workflow"] != "ready" {
		t.Errorf("health = %+v", h)
	}
}

func TestThreads(t *testing.T) {
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"active_thread_ids":["a","b"],"pending_interrupt_ids":["b"],"active_count":2,"pending_count":1}`))
	})

	list, err := c.Threads(context.Background())
	if err != nil {
		t.Fatalf("Threads: %v", err)
	}
	if len(list.ActiveThreadIDs) != 2 || len(list.PendingInterruptIDs) != 1 {
		t.Errorf("list = %+v", list)
	}
	if list.ActiveCount != 2 || list.PendingCount != 1 {
		t.Errorf("counts = %+v", list)
	}
}

func TestThreadState(t *testing.T) {
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/threads/t1/state" {
			t.Errorf("path = %q", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{
			"thread_id": "t1",
			"status": "pending_human",
			"state": {"research_plan": {"purpose": "P"}},
			"pending_interrupt": {"id": "i1", "value": "調査計画を編集しますか？"}
		}`))
	})

	st, err := c.ThreadState(context.Background(), "t1")
	if err != nil {
		t.Fatalf("ThreadState: %v", err)
	}
	if st.ThreadID != "t1" || st.Status != "pending_human" {
		t.Errorf("state = %+v", st)
	}
	if st.PendingInterrupt == nil || st.PendingInterrupt.ID != "i1" {
		t.Errorf("interrupt = %+v", st.PendingInterrupt)
	}
	plan, ok := st.State["research_plan"].(map[string]any)
	if !ok || plan["purpose"] != "P" {
		t.Errorf("plan = %v", st.State)
	}
}

func TestThreadStateNotFound(t *testing.T) {
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"not found"}`, http.StatusNotFound)
	})

	_, err := c.ThreadState(context.Background(), "missing")
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestThreadStateEmptyID(t *testing.T) {
	c := New("http://localhost:0", time.Second)
	if _, err := c.ThreadState(context.Background(), "  "); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestTimeoutYieldsErrTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	t.Cleanup(srv.Close)

	c := New(srv.URL, 30*time.Millisecond)
	if _, err := c.Threads(context.Background()); !errors.Is(err, apperrors.ErrTimeout) {
		t.Errorf("client timeout: err = %v, want ErrTimeout", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	c = New(srv.URL, 2*time.Second)
	if _, err := c.Threads(ctx); !errors.Is(err, apperrors.ErrTimeout) {
		t.Errorf("context deadline: err = %v, want ErrTimeout", err)
	}
}

func TestServerErrorSurfaces(t *testing.T) {
	c := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	if _, err := c.Threads(context.Background()); err == nil {
		t.Error("500 should surface as error")
	}
}
