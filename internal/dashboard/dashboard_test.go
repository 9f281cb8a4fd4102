package dashboard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestRegistry_UpdateAndSnapshot(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Update(RunView{Name: "sma-AAPL", Equity: 1_010_000, TicksSeen: 42})
	r.Update(RunView{Name: "sma-AAPL", Equity: 1_020_000, TicksSeen: 43})
	r.Update(RunView{Name: "sma-MSFT", Equity: 995_000, TicksSeen: 10})

	snap := r.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 distinct run views, got %d", len(snap))
	}

	byName := make(map[string]RunView, len(snap))
	for _, v := range snap {
		byName[v.Name] = v
	}
	if byName["sma-AAPL"].Equity != 1_020_000 {
		t.Errorf("expected the latest update to win, got %+v", byName["sma-AAPL"])
	}
}

func TestServer_HealthAndSnapshotEndpoints(t *testing.T) {
	t.Parallel()

	hub := NewHub(nil)
	go hub.Run()

	registry := NewRegistry()
	registry.Update(RunView{Name: "sma-AAPL", Equity: 1_000_000})

	srv := NewServer(":0", hub, registry, nil)
	ts := httptest.NewServer(srv.httpSrv.Handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/health status = %d, want 200", resp.StatusCode)
	}

	resp2, err := http.Get(ts.URL + "/snapshot")
	if err != nil {
		t.Fatalf("GET /snapshot: %v", err)
	}
	defer resp2.Body.Close()

	var views []RunView
	if err := json.NewDecoder(resp2.Body).Decode(&views); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if len(views) != 1 || views[0].Name != "sma-AAPL" {
		t.Errorf("unexpected snapshot: %+v", views)
	}
}

func TestHub_BroadcastReachesConnectedClient(t *testing.T) {
	t.Parallel()

	hub := NewHub(nil)
	go hub.Run()

	ts := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Give the hub's run loop a moment to process the registration before
	// broadcasting, since register is funneled through a channel.
	time.Sleep(50 * time.Millisecond)

	hub.Broadcast(NewEquityEvent("sma-AAPL", 1_000_000, time.Unix(0, 0).UTC()))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, message, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}

	var evt Event
	if err := json.Unmarshal(message, &evt); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	if evt.Type != EventEquity {
		t.Errorf("event type = %q, want %q", evt.Type, EventEquity)
	}
}
