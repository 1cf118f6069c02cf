// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 SpectraLoop Contributors

package api

import (
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWSStateStream(t *testing.T) {
	engine := newFakeEngine()
	engine.store.RecordTemperature(1, 30.0)
	ts := newTestServer(t, engine)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var frame map[string]any
	require.NoError(t, conn.ReadJSON(&frame))

	require.Contains(t, frame, "state")
	state := frame["state"].(map[string]any)
	assert.Equal(t, 30.0, state["sensor1_temp"])

	// The stream keeps ticking.
	require.NoError(t, conn.ReadJSON(&frame))
}
