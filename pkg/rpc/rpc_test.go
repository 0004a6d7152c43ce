package rpc

import (
	"bytes"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewFrameWriter(&buf)
	r := NewFrameReader(&buf)

	type payload struct {
		Name string `json:"name"`
	}
	require.NoError(t, w.WriteFrame(payload{Name: "hello"}))

	var got payload
	require.NoError(t, r.ReadFrame(&got))
	assert.Equal(t, "hello", got.Name)
}

func TestFrameRejectsOversizedFrame(t *testing.T) {
	var buf bytes.Buffer
	r := NewFrameReader(&buf)

	var lenBuf [4]byte
	lenBuf[0] = 0xFF
	lenBuf[1] = 0xFF
	lenBuf[2] = 0xFF
	lenBuf[3] = 0xFF
	buf.Write(lenBuf[:])

	var v any
	err := r.ReadFrame(&v)
	assert.Error(t, err)
}

func TestConnCallRoundTripsThroughHandler(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()
	defer serverSide.Close()

	serverHandler := func(method string, params json.RawMessage) (any, error) {
		var p methodCallParams
		require.NoError(t, json.Unmarshal(params, &p))
		return map[string]any{"echo": p.Method}, nil
	}

	serverConn := NewConn("client", serverSide, serverHandler, time.Second)
	defer serverConn.Close()

	clientConn := NewConn("server", clientSide, func(method string, params json.RawMessage) (any, error) {
		return nil, nil
	}, time.Second)
	defer clientConn.Close()

	result, err := clientConn.Call("entity.call", methodCallParams{EntityID: "P1", Method: "greet"})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(result, &decoded))
	assert.Equal(t, "greet", decoded["echo"])
}

func TestRemoteProxyCallFailsWithoutConnection(t *testing.T) {
	p := NewRemoteProxy()
	_, err := p.Call("peer-x", "P1", "greet", nil)
	assert.Error(t, err)
}

func TestRemoteProxyPropertySnapshot(t *testing.T) {
	p := NewRemoteProxy()
	_, ok := p.PropertyRead("P1", "hp")
	assert.False(t, ok)

	p.UpdateSnapshot("P1", "hp", 42)
	v, ok := p.PropertyRead("P1", "hp")
	require.True(t, ok)
	assert.Equal(t, 42, v)
}

func TestRemoteProxyCloseTearsDownAllConnsAndFailsFurtherCalls(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	defer serverSide.Close()

	handler := func(method string, params json.RawMessage) (any, error) { return nil, nil }
	conn := NewConn("peer-b", clientSide, handler, time.Second)

	p := NewRemoteProxy()
	p.SetConn("peer-b", conn)

	p.Close()

	_, err := p.Call("peer-b", "P1", "greet", nil)
	assert.Error(t, err, "Close must deregister connections so later Calls fail with ErrNoConnection")
}
