// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 SpectraLoop Contributors

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsSnapshotInterval = 500 * time.Millisecond
	wsWriteTimeout     = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The control plane is origin-agnostic: dashboards connect from
	// anywhere on the operator network.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StateFrame is one websocket message: the engine snapshot plus the local
// speed bookkeeping.
type StateFrame struct {
	State           any            `json:"state"`
	Motors          map[string]any `json:"motors"`
	LevitationSpeed int            `json:"levitation_speed"`
	ThrustSpeed     int            `json:"thrust_speed"`
	QueueDepth      int            `json:"queue_depth"`
	SentAt          time.Time      `json:"sent_at"`
}

// WS streams state snapshots to the client every 500ms until the client
// goes away.
func (h *Handler) WS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()
	h.log.Info("websocket client connected", "remote", r.RemoteAddr)

	// Drain client frames so pings and close messages are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsSnapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			frame := h.stateFrame()
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(frame); err != nil {
				h.log.Info("websocket client disconnected", "remote", r.RemoteAddr)
				return
			}
		}
	}
}

func (h *Handler) stateFrame() StateFrame {
	h.mu.Lock()
	motors := make(map[string]any, len(h.motorSpeeds))
	for num, speed := range h.motorSpeeds {
		motors[strconv.Itoa(num)] = map[string]any{"speed": speed, "active": h.motorActive[num]}
	}
	lev, thr := h.levSpeed, h.thrSpeed
	h.mu.Unlock()

	return StateFrame{
		State:           h.engine.Store().Snapshot(),
		Motors:          motors,
		LevitationSpeed: lev,
		ThrustSpeed:     thr,
		QueueDepth:      h.engine.QueueDepth(),
		SentAt:          time.Now(),
	}
}
