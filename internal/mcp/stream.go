// ABOUTME: Streaming transport: one text/event-stream per client plus a message endpoint
// ABOUTME: Responses are emitted on the stream that submitted the request, in completion order

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/skybridge/internal/auth"
)

// DefaultKeepaliveInterval is how often an idle stream receives a comment line.
const DefaultKeepaliveInterval = 30 * time.Second

// streamBuffer is the number of responses queued per stream before senders wait.
const streamBuffer = 64

// stream is one connected streaming client.
type stream struct {
	id    string
	token string // bearer presented when the stream was opened
	ctx   context.Context
	out   chan *Response
}

// deliver queues resp for the stream. Returns false if the stream has gone away.
func (st *stream) deliver(resp *Response) bool {
	select {
	case st.out <- resp:
		return true
	case <-st.ctx.Done():
		return false
	}
}

// streamHub tracks open streams.
type streamHub struct {
	mu      sync.RWMutex
	streams map[string]*stream
	done    chan struct{}
	closed  bool
}

func newStreamHub() *streamHub {
	return &streamHub{
		streams: make(map[string]*stream),
		done:    make(chan struct{}),
	}
}

func (h *streamHub) add(st *stream) {
	h.mu.Lock()
	h.streams[st.id] = st
	h.mu.Unlock()
}

func (h *streamHub) remove(id string) {
	h.mu.Lock()
	delete(h.streams, id)
	h.mu.Unlock()
}

func (h *streamHub) get(id string) (*stream, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	st, ok := h.streams[id]
	return st, ok
}

func (h *streamHub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.streams)
}

// close ends every stream loop. Safe to call multiple times.
func (h *streamHub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.closed {
		close(h.done)
		h.closed = true
	}
}

// handleStream serves a long-lived event stream.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	st := &stream{
		id:    uuid.New().String(),
		token: auth.BearerFromRequest(r),
		ctx:   r.Context(),
		out:   make(chan *Response, streamBuffer),
	}
	s.streams.add(st)
	defer s.streams.remove(st.id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	s.logger.Info("MCP stream opened",
		"stream_id", st.id,
		"authenticated", st.token != "",
		"open_streams", s.streams.count(),
	)
	defer s.logger.Info("MCP stream closed", "stream_id", st.id)

	writeRawEvent(w, "endpoint", s.messagesPath+"?stream="+st.id)
	s.writeEvent(w, "message", Notification{
		JSONRPC: jsonrpcVersion,
		Method:  "endpoint/info",
		Params:  s.initializeResult(),
	})
	flusher.Flush()

	ticker := time.NewTicker(s.keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.streams.done:
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case resp := <-st.out:
			s.writeEvent(w, "message", resp)
			flusher.Flush()
		}
	}
}

// handleStreamMessage accepts one envelope for an open stream and answers on that stream.
func (s *Server) handleStreamMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	st, ok := s.streams.get(r.URL.Query().Get("stream"))
	if !ok {
		http.Error(w, "Not Found: unknown stream", http.StatusNotFound)
		return
	}

	token := auth.BearerFromRequest(r)
	if st.token != "" {
		switch token {
		case "":
			token = st.token
		case st.token:
		default:
			http.Error(w, "Forbidden: token does not match stream", http.StatusForbidden)
			return
		}
	}

	body, errResp := readBody(r)
	var req *Request
	if errResp == nil {
		req, errResp = parseRequest(body)
	}
	if errResp != nil {
		st.deliver(errResp)
		w.WriteHeader(http.StatusAccepted)
		return
	}

	s.logger.Debug("MCP stream request", "stream_id", st.id, "method", req.Method)

	if req.IsNotification() {
		s.dispatch(st.ctx, req, call{transport: TransportSSE, token: token})
		w.WriteHeader(http.StatusAccepted)
		return
	}

	go func() {
		resp := s.dispatch(st.ctx, req, call{transport: TransportSSE, token: token})
		if resp == nil {
			return
		}
		if !st.deliver(resp) {
			s.logger.Debug("dropping response for closed stream", "stream_id", st.id, "method", req.Method)
		}
	}()

	w.WriteHeader(http.StatusAccepted)
}

// writeRawEvent writes an SSE event whose data is already a string.
func writeRawEvent(w io.Writer, event, data string) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}

// writeEvent writes a single SSE event with JSON data.
func (s *Server) writeEvent(w io.Writer, event string, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("failed to marshal SSE data", "error", err)
		return
	}
	writeRawEvent(w, event, string(dataJSON))
}
