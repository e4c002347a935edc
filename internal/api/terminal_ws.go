package api

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	apiTypes "github.com/coxswain-dev/coxswain/pkg/api"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

type wsInbound struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
}

type wsOutbound struct {
	Type     string                   `json:"type"`
	Snapshot *apiTypes.ScreenSnapshot `json:"snapshot,omitempty"`
}

// terminalWebSocket streams mirrored screen updates to the client and
// feeds keystrokes back into the conductor.
func (h *Handler) terminalWebSocket(w http.ResponseWriter, r *http.Request) {
	c := h.session(w, r)
	if c == nil {
		return
	}
	screen := h.screens(c.DCSID())
	if screen == nil {
		writeError(w, http.StatusNotFound, "session has no mirrored screen", "")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	updates, cancel := screen.Subscribe()
	defer cancel()

	// Reader: keystrokes arrive base64-encoded so control bytes
	// survive JSON.
	go func() {
		defer cancel()
		for {
			var msg wsInbound
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if msg.Type != "keys" {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(msg.Data)
			if err != nil {
				continue
			}
			c.SendKeys(data)
		}
	}()

	sendSnapshot := func() error {
		snap, ok := screen.Snapshot()
		if !ok {
			return nil
		}
		out := wsOutbound{Type: "snapshot", Snapshot: &apiTypes.ScreenSnapshot{
			Rows:    snap.Rows,
			Cols:    snap.Cols,
			Lines:   snap.Lines,
			CursorX: snap.CurX,
			CursorY: snap.CurY,
		}}
		payload, err := json.Marshal(out)
		if err != nil {
			return err
		}
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteMessage(websocket.TextMessage, payload)
	}

	if err := sendSnapshot(); err != nil {
		return
	}

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case _, ok := <-updates:
			if !ok {
				return
			}
			if err := sendSnapshot(); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}
