package rpc

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShouldDialPicksExactlyOneSidePerPair(t *testing.T) {
	assert.True(t, ShouldDial("host-00", "host-01"))
	assert.False(t, ShouldDial("host-01", "host-00"))
	assert.NotEqual(t, ShouldDial("a", "b"), ShouldDial("b", "a"))
}

func TestListenDialHandshakeIdentifiesDialingPeer(t *testing.T) {
	ln, err := Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	handler := func(method string, params json.RawMessage) (any, error) {
		return map[string]any{"method": method}, nil
	}

	accepted := make(chan string, 1)
	go func() {
		peerID, conn, err := ln.Accept(handler, time.Second)
		if err != nil {
			return
		}
		defer conn.Close()
		accepted <- peerID
	}()

	clientConn, err := Dial(ln.Addr().String(), "host-00", "host-01", handler, time.Second)
	require.NoError(t, err)
	defer clientConn.Close()

	select {
	case peerID := <-accepted:
		assert.Equal(t, "host-00", peerID)
	case <-time.After(2 * time.Second):
		t.Fatal("accept never identified the dialing peer")
	}

	result, err := clientConn.Call("gs.ping", nil)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(result, &decoded))
	assert.Equal(t, "gs.ping", decoded["method"])
}
