package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/gorilla/websocket"

	"github.com/chenhan1218/autopilot/internal/introspection"
)

// The wire protocol is CBOR frames over websocket. The bus endpoint
// (/bus) answers discovery requests; each source endpoint (/source/<id>)
// answers tree requests for one target process. A source connection is
// multiplexed: requests carry sequence numbers and responses may arrive
// in any order.

type frameOp string

const (
	opList     frameOp = "list"
	opRoot     frameOp = "root"
	opNode     frameOp = "node"
	opChildren frameOp = "children"
)

// Response codes other than "" map onto the error taxonomy. "busy" is the
// only transient one.
const (
	codeNodeNotFound = "node-not-found"
	codeBusy         = "busy"
	codeBadRequest   = "bad-request"
)

type request struct {
	Seq  uint64               `cbor:"seq"`
	Op   frameOp              `cbor:"op"`
	Node introspection.NodeID `cbor:"node,omitempty"`
}

type wireNode struct {
	ID       introspection.NodeID           `cbor:"id"`
	Type     string                         `cbor:"type"`
	Attrs    map[string]introspection.Value `cbor:"attrs,omitempty"`
	Children []introspection.NodeID         `cbor:"children,omitempty"`
}

type response struct {
	Seq      uint64                     `cbor:"seq"`
	Code     string                     `cbor:"code,omitempty"`
	Msg      string                     `cbor:"msg,omitempty"`
	Root     introspection.NodeID       `cbor:"root,omitempty"`
	Node     *wireNode                  `cbor:"node,omitempty"`
	Children []introspection.NodeID     `cbor:"children,omitempty"`
	Sources  []introspection.SourceInfo `cbor:"sources,omitempty"`
}

// WireBus talks to a remote introspection bus over websocket.
type WireBus struct {
	addr   string
	dialer *websocket.Dialer
	policy RetryPolicy
}

// NewWireBus returns a bus client for addr (host:port). Connections it
// opens retry transient failures per DefaultRetryPolicy.
func NewWireBus(addr string) *WireBus {
	return &WireBus{
		addr:   addr,
		dialer: websocket.DefaultDialer,
		policy: DefaultRetryPolicy,
	}
}

// ListSources dials the bus endpoint and enumerates live sources.
func (b *WireBus) ListSources(ctx context.Context) ([]introspection.SourceInfo, error) {
	ws, _, err := b.dialer.DialContext(ctx, fmt.Sprintf("ws://%s/bus", b.addr), nil)
	if err != nil {
		return nil, fmt.Errorf("dial bus %s: %w", b.addr, err)
	}
	defer ws.Close()

	if err := writeFrame(ws, request{Seq: 1, Op: opList}); err != nil {
		return nil, err
	}
	resp, err := readFrame(ws)
	if err != nil {
		return nil, err
	}
	if resp.Code != "" {
		return nil, fmt.Errorf("list sources: %s: %s", resp.Code, resp.Msg)
	}
	return resp.Sources, nil
}

// Connect dials one source's endpoint. The server answers the upgrade
// with a hello frame (seq 0) describing the source before any request is
// sent.
func (b *WireBus) Connect(ctx context.Context, id introspection.SourceID) (Conn, error) {
	url := fmt.Sprintf("ws://%s/source/%s", b.addr, id)
	ws, httpResp, err := b.dialer.DialContext(ctx, url, nil)
	if err != nil {
		if httpResp != nil && httpResp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("source %q: %w", id, introspection.ErrConnectionNotFound)
		}
		return nil, fmt.Errorf("dial source %q: %w", id, err)
	}

	hello, err := readFrame(ws)
	if err != nil || len(hello.Sources) != 1 {
		ws.Close()
		return nil, fmt.Errorf("source %q: bad hello frame: %v", id, err)
	}

	c := &wireConn{
		info:    hello.Sources[0],
		ws:      ws,
		pending: make(map[uint64]chan response),
		closed:  make(chan struct{}),
	}
	go c.readLoop()
	return WithRetry(c, b.policy), nil
}

func writeFrame(ws *websocket.Conn, v interface{}) error {
	data, err := cbor.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	if err := ws.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func readFrame(ws *websocket.Conn) (response, error) {
	_, data, err := ws.ReadMessage()
	if err != nil {
		return response{}, fmt.Errorf("read frame: %w", err)
	}
	var resp response
	if err := cbor.Unmarshal(data, &resp); err != nil {
		return response{}, fmt.Errorf("decode frame: %w", err)
	}
	return resp, nil
}

// wireConn multiplexes concurrent requests over one websocket. Writes are
// serialized under writeMu; a single reader goroutine dispatches responses
// to the pending table by sequence number.
type wireConn struct {
	info introspection.SourceInfo
	ws   *websocket.Conn

	writeMu sync.Mutex

	mu      sync.Mutex
	seq     uint64
	pending map[uint64]chan response
	dead    bool

	closed    chan struct{}
	closeOnce sync.Once
}

func (c *wireConn) Source() introspection.SourceInfo { return c.info }

func (c *wireConn) Close() error {
	c.fail()
	return nil
}

// fail marks the connection dead and wakes every in-flight call. Called on
// read errors, server close, and Close.
func (c *wireConn) fail() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.dead = true
		for seq, ch := range c.pending {
			close(ch)
			delete(c.pending, seq)
		}
		c.mu.Unlock()
		close(c.closed)
		c.ws.Close()
	})
}

func (c *wireConn) readLoop() {
	for {
		resp, err := readFrame(c.ws)
		if err != nil {
			c.fail()
			return
		}
		c.mu.Lock()
		ch, ok := c.pending[resp.Seq]
		if ok {
			delete(c.pending, resp.Seq)
		}
		c.mu.Unlock()
		if ok {
			ch <- resp
			close(ch)
		}
	}
}

func (c *wireConn) call(ctx context.Context, op frameOp, node introspection.NodeID) (response, error) {
	c.mu.Lock()
	if c.dead {
		c.mu.Unlock()
		return response{}, introspection.ErrSourceDisconnected
	}
	c.seq++
	seq := c.seq
	ch := make(chan response, 1)
	c.pending[seq] = ch
	c.mu.Unlock()

	c.writeMu.Lock()
	err := writeFrame(c.ws, request{Seq: seq, Op: op, Node: node})
	c.writeMu.Unlock()
	if err != nil {
		c.mu.Lock()
		delete(c.pending, seq)
		c.mu.Unlock()
		c.fail()
		return response{}, introspection.ErrSourceDisconnected
	}

	select {
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, seq)
		c.mu.Unlock()
		return response{}, ctx.Err()
	case <-c.closed:
		return response{}, introspection.ErrSourceDisconnected
	case resp, ok := <-ch:
		if !ok {
			return response{}, introspection.ErrSourceDisconnected
		}
		return resp, respError(resp)
	}
}

// respError maps a response code onto the error taxonomy.
func respError(resp response) error {
	switch resp.Code {
	case "":
		return nil
	case codeNodeNotFound:
		return fmt.Errorf("%s: %w", resp.Msg, introspection.ErrNodeNotFound)
	case codeBusy:
		return Transient(fmt.Errorf("bus busy: %s", resp.Msg))
	default:
		return fmt.Errorf("%s: %s", resp.Code, resp.Msg)
	}
}

func (c *wireConn) Root(ctx context.Context) (introspection.NodeID, error) {
	resp, err := c.call(ctx, opRoot, 0)
	if err != nil {
		return 0, err
	}
	return resp.Root, nil
}

func (c *wireConn) FetchNode(ctx context.Context, id introspection.NodeID) (introspection.Node, error) {
	resp, err := c.call(ctx, opNode, id)
	if err != nil {
		return introspection.Node{}, err
	}
	if resp.Node == nil {
		return introspection.Node{}, fmt.Errorf("node %d: empty response", id)
	}
	return introspection.Node{
		ID:       resp.Node.ID,
		TypeName: resp.Node.Type,
		Attrs:    resp.Node.Attrs,
		ChildIDs: resp.Node.Children,
	}, nil
}

func (c *wireConn) FetchChildren(ctx context.Context, id introspection.NodeID) ([]introspection.NodeID, error) {
	resp, err := c.call(ctx, opChildren, id)
	if err != nil {
		return nil, err
	}
	return resp.Children, nil
}
