package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zoravur/ivm-engine/internal/ivm/poke"
	"github.com/zoravur/ivm-engine/internal/ivm/query"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSHandler holds the shared resources every websocket connection compiles
// its subscriptions against, injected from app.Server.
type WSHandler struct {
	deps  Deps
	stats *pokeStatsAggregate
}

// subscription is one compiled, ticking query a connection is currently
// watching. A connection may hold at most one at a time, matching the
// teacher's one-live-query-per-client shape.
type subscription struct {
	id      string
	query   *query.Query
	compile *query.Compiled
	stop    chan struct{}
}

// HandleWS upgrades the connection, then loops reading subscribe/unsubscribe
// requests and writing poke.Poke envelopes for whatever query is currently
// live, cleaning up the subscription's connections on disconnect.
func (h *WSHandler) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.deps.Log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	var writeMu sync.Mutex
	wsSend := func(msgType string, payload any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(map[string]any{"type": msgType, "data": payload})
	}

	var mu sync.Mutex
	var active *subscription
	cookieSeq := 0

	stopActive := func() {
		mu.Lock()
		sub := active
		active = nil
		mu.Unlock()
		if sub != nil {
			close(sub.stop)
			sub.compile.Close()
		}
	}
	defer stopActive()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				if ce.Code == websocket.CloseNormalClosure || ce.Code == websocket.CloseGoingAway {
					h.deps.Log.Info("ws closed", zap.Int("code", ce.Code))
				} else {
					h.deps.Log.Warn("ws closed abnormally", zap.Int("code", ce.Code), zap.String("text", ce.Text))
				}
			} else {
				h.deps.Log.Error("ws read error", zap.Error(err))
			}
			break
		}

		var req struct {
			Type  string          `json:"type"`
			Query json.RawMessage `json:"query"`
		}
		if err := json.Unmarshal(msg, &req); err != nil {
			wsSend("error", map[string]string{"error": "invalid JSON"})
			continue
		}

		switch strings.ToLower(req.Type) {
		case "subscribe":
			stopActive()

			q, err := decodeQuery(req.Query)
			if err != nil {
				wsSend("error", map[string]string{"error": err.Error()})
				continue
			}
			compiled, err := query.Compile(h.deps.Sources, q)
			if err != nil {
				wsSend("error", map[string]string{"error": err.Error()})
				continue
			}

			sub := &subscription{id: uuid.NewString(), query: q, compile: compiled, stop: make(chan struct{})}
			mu.Lock()
			active = sub
			mu.Unlock()

			wsSend("subscribed", map[string]any{"id": sub.id, "table": q.Table})
			h.sendSnapshot(wsSend, &cookieSeq, compiled)
			go h.pump(sub, wsSend, &cookieSeq, &mu, &active)

		case "unsubscribe":
			stopActive()
			wsSend("unsubscribed", "ok")

		default:
			wsSend("error", map[string]string{"error": "unknown message type"})
		}
	}
}

// pump ticks sub's view at deps.TickRate, sending a full-snapshot poke
// envelope whenever the tick applied at least one change, until sub.stop
// closes or sub is replaced by a newer subscription. When it exits it adds
// the number of snapshots it sent to h.stats.
func (h *WSHandler) pump(sub *subscription, wsSend func(string, any) error, cookieSeq *int, mu *sync.Mutex, active **subscription) {
	interval := h.deps.TickRate
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sent := 0
	for {
		select {
		case <-sub.stop:
			h.stats.add(poke.Stats{Total: sent})
			return
		case <-ticker.C:
			mu.Lock()
			current := *active
			mu.Unlock()
			if current != sub {
				h.stats.add(poke.Stats{Total: sent})
				return
			}
			n, err := sub.compile.View.Tick()
			if err != nil {
				h.deps.Log.Error("view tick failed", zap.String("sub", sub.id), zap.Error(err))
				continue
			}
			if n == 0 {
				continue
			}
			h.sendSnapshot(wsSend, cookieSeq, sub.compile)
			sent++
		}
	}
}

// sendSnapshot writes a "poke" message holding a poke.Poke envelope, the
// wire-level cookie-chained unit §4.6 defines, with BaseCookie and Cookie
// set and no Changes, then a "rows" message carrying the view's current row
// set under the same cookie. This server always sends a full replacement snapshot
// rather than a row-level diff, so only the envelope shape (not the
// client-side pacing in package poke) is shared with the sync protocol's
// future client implementation.
func (h *WSHandler) sendSnapshot(wsSend func(string, any) error, cookieSeq *int, compiled *query.Compiled) {
	base := strconv.Itoa(*cookieSeq)
	*cookieSeq++
	cookie := strconv.Itoa(*cookieSeq)

	rows := compiled.View.Snapshot()
	wsSend("poke", poke.Poke{
		BaseCookie: base,
		Cookie:     cookie,
		Changes:    nil,
	})
	wsSend("rows", map[string]any{"cookie": cookie, "rows": rows})
}
