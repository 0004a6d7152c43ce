package rpc

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/worldgs/gameserver/pkg/coreerr"
	"github.com/worldgs/gameserver/pkg/log"
	"github.com/worldgs/gameserver/pkg/metrics"
	"github.com/google/uuid"
)

// Handler answers an inbound RPC call, returning the result to be
// marshaled into the response envelope.
type Handler func(method string, params json.RawMessage) (any, error)

// pendingCall tracks an in-flight outbound request awaiting a response.
type pendingCall struct {
	sentAt time.Time
	result chan Response
}

// Conn is one persistent peer wire connection: it multiplexes outbound
// calls awaiting replies with inbound calls dispatched to a Handler, over
// a single length-framed stream. Exactly one side of a peer pair owns the
// dial; the accepting side wraps the same net.Conn in a Conn identically.
type Conn struct {
	peerID  string
	writer  *FrameWriter
	reader  *FrameReader
	handler Handler

	mu      sync.Mutex
	pending map[string]*pendingCall
	closed  bool

	timeout time.Duration
	stopCh  chan struct{}
}

// NewConn wraps rwc (a net.Conn or any ReadWriteCloser) as a peer
// connection identified by peerID, dispatching inbound calls to handler.
func NewConn(peerID string, rwc io.ReadWriteCloser, handler Handler, timeout time.Duration) *Conn {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Conn{
		peerID:  peerID,
		writer:  NewFrameWriter(rwc),
		reader:  NewFrameReader(rwc),
		handler: handler,
		pending: make(map[string]*pendingCall),
		timeout: timeout,
		stopCh:  make(chan struct{}),
	}
	go c.readLoop(rwc)
	go c.sweepLoop()
	return c
}

// readLoop drains the stream, routing frames without a method (Responses)
// to the caller waiting on their id, and frames with a method to the
// inbound Handler as a Request.
func (c *Conn) readLoop(closer io.Closer) {
	defer closer.Close()
	for {
		var raw json.RawMessage
		if err := c.reader.ReadFrame(&raw); err != nil {
			c.failAllPending(err)
			return
		}

		var probe struct {
			ID     string          `json:"id"`
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
		}
		if err := json.Unmarshal(raw, &probe); err != nil {
			continue
		}

		if probe.Method == "" {
			var resp Response
			if err := json.Unmarshal(raw, &resp); err != nil {
				continue
			}
			c.deliver(resp)
			continue
		}

		go c.handleInbound(Request{ID: probe.ID, Method: probe.Method, Params: probe.Params})
	}
}

func (c *Conn) handleInbound(req Request) {
	result, err := c.handler(req.Method, req.Params)
	resp := Response{ID: req.ID}
	if err != nil {
		resp.Error = &RPCError{Code: ErrCodeRemoteFailure, Message: err.Error()}
	} else {
		data, merr := json.Marshal(result)
		if merr != nil {
			resp.Error = &RPCError{Code: ErrCodeRemoteFailure, Message: merr.Error()}
		} else {
			resp.Result = data
		}
	}
	if werr := c.writer.WriteFrame(resp); werr != nil {
		log.WithPeerID(c.peerID).Warn().Err(werr).Msg("failed to write RPC response")
	}
}

func (c *Conn) deliver(resp Response) {
	c.mu.Lock()
	pc, ok := c.pending[resp.ID]
	if ok {
		delete(c.pending, resp.ID)
	}
	c.mu.Unlock()
	if ok {
		pc.result <- resp
	}
}

func (c *Conn) failAllPending(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for id, pc := range c.pending {
		pc.result <- Response{ID: id, Error: &RPCError{Code: ErrCodeRemoteFailure, Message: err.Error()}}
		delete(c.pending, id)
	}
}

// Call sends method/params to the peer and blocks for a reply or timeout.
func (c *Conn) Call(method string, params any) (json.RawMessage, error) {
	data, err := json.Marshal(params)
	if err != nil {
		return nil, coreerr.HandlerError(err)
	}

	id := uuid.New().String()
	pc := &pendingCall{sentAt: time.Now(), result: make(chan Response, 1)}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, coreerr.RPCTimeout(method)
	}
	c.pending[id] = pc
	c.mu.Unlock()

	timer := metrics.NewTimer()
	if err := c.writer.WriteFrame(Request{ID: id, Method: method, Params: data}); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		metrics.RPCRequestsTotal.WithLabelValues(method, "error").Inc()
		return nil, coreerr.Wrap(coreerr.KindRPCRemote, "write failed", err)
	}

	resp := <-pc.result
	timer.ObserveDurationVec(metrics.RPCRequestDuration, method)

	if resp.Error != nil {
		metrics.RPCRequestsTotal.WithLabelValues(method, "error").Inc()
		if resp.Error.Code == ErrCodeTimeout {
			return nil, coreerr.RPCTimeout(method)
		}
		return nil, coreerr.RPCRemote(resp.Error.Code, resp.Error.Message)
	}
	metrics.RPCRequestsTotal.WithLabelValues(method, "ok").Inc()
	return resp.Result, nil
}

// sweepLoop periodically fails pending calls that have waited past the
// connection's timeout, without tearing down the connection itself.
func (c *Conn) sweepLoop() {
	ticker := time.NewTicker(c.timeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweepStale()
		case <-c.stopCh:
			return
		}
	}
}

func (c *Conn) sweepStale() {
	now := time.Now()
	c.mu.Lock()
	var stale []string
	for id, pc := range c.pending {
		if now.Sub(pc.sentAt) > c.timeout {
			stale = append(stale, id)
		}
	}
	for _, id := range stale {
		pc := c.pending[id]
		delete(c.pending, id)
		pc.result <- Response{ID: id, Error: &RPCError{Code: ErrCodeTimeout, Message: "request timed out"}}
	}
	c.mu.Unlock()
}

// Close stops the sweeper goroutine. The read loop exits on its own once
// the underlying stream is closed by the caller.
func (c *Conn) Close() {
	select {
	case <-c.stopCh:
	default:
		close(c.stopCh)
	}
}
