package transport

import (
	"context"
	"errors"
	"net/http"

	"github.com/fxamacker/cbor/v2"
	"github.com/gorilla/websocket"

	"github.com/chenhan1218/autopilot/internal/introspection"
)

// Handler serves a Bus over the websocket wire protocol. It is the
// server side of WireBus: the demo server publishes a MemoryBus through
// it, and the wire tests round-trip through it.
func Handler(bus Bus) http.Handler {
	s := &wireServer{bus: bus}
	mux := http.NewServeMux()
	mux.HandleFunc("/bus", s.handleBus)
	mux.HandleFunc("/source/", s.handleSource)
	return mux
}

type wireServer struct {
	bus      Bus
	upgrader websocket.Upgrader
}

func (s *wireServer) handleBus(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer ws.Close()

	for {
		req, err := readRequest(ws)
		if err != nil {
			return
		}
		resp := response{Seq: req.Seq}
		if req.Op != opList {
			resp.Code = codeBadRequest
			resp.Msg = "bus endpoint only answers list"
		} else if sources, err := s.bus.ListSources(r.Context()); err != nil {
			resp.Code = codeBadRequest
			resp.Msg = err.Error()
		} else {
			resp.Sources = sources
		}
		if err := writeFrame(ws, resp); err != nil {
			return
		}
	}
}

func (s *wireServer) handleSource(w http.ResponseWriter, r *http.Request) {
	id := introspection.SourceID(r.URL.Path[len("/source/"):])
	conn, err := s.bus.Connect(r.Context(), id)
	if err != nil {
		if errors.Is(err, introspection.ErrConnectionNotFound) {
			http.NotFound(w, r)
		} else {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	defer conn.Close()

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer ws.Close()

	// Hello frame: tell the client which source it is attached to.
	if err := writeFrame(ws, response{Sources: []introspection.SourceInfo{conn.Source()}}); err != nil {
		return
	}

	for {
		req, err := readRequest(ws)
		if err != nil {
			return
		}
		resp, err := s.dispatch(r.Context(), conn, req)
		if err != nil {
			// Source went away: drop the websocket, the client surfaces
			// the disconnect from the closed channel.
			return
		}
		if err := writeFrame(ws, resp); err != nil {
			return
		}
	}
}

// dispatch runs one tree request against the connection and encodes the
// outcome, mapping taxonomy errors to wire codes. A non-nil error return
// means the source disconnected and the socket must be dropped.
func (s *wireServer) dispatch(ctx context.Context, conn Conn, req request) (response, error) {
	resp := response{Seq: req.Seq}
	var err error
	switch req.Op {
	case opRoot:
		resp.Root, err = conn.Root(ctx)
	case opNode:
		var node introspection.Node
		node, err = conn.FetchNode(ctx, req.Node)
		if err == nil {
			resp.Node = &wireNode{
				ID:       node.ID,
				Type:     node.TypeName,
				Attrs:    node.Attrs,
				Children: node.ChildIDs,
			}
		}
	case opChildren:
		resp.Children, err = conn.FetchChildren(ctx, req.Node)
	default:
		resp.Code = codeBadRequest
		resp.Msg = "unknown op: " + string(req.Op)
		return resp, nil
	}

	switch {
	case err == nil:
	case errors.Is(err, introspection.ErrNodeNotFound):
		resp.Code = codeNodeNotFound
		resp.Msg = err.Error()
	case IsTransient(err):
		resp.Code = codeBusy
		resp.Msg = err.Error()
	case errors.Is(err, introspection.ErrSourceDisconnected):
		return response{}, err
	default:
		resp.Code = codeBadRequest
		resp.Msg = err.Error()
	}
	return resp, nil
}

func readRequest(ws *websocket.Conn) (request, error) {
	_, data, err := ws.ReadMessage()
	if err != nil {
		return request{}, err
	}
	var req request
	if err := cbor.Unmarshal(data, &req); err != nil {
		return request{}, err
	}
	return req, nil
}
