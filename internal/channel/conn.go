// Package channel implements the per-connection WebSocket endpoint (C11):
// handshake, the rate-limited receive loop, dispatch, and the output/exit
// fan-out that turns a session's subscription streams into term.out and
// session.exited pushes. Grounded on the teacher's node.handleClient /
// handleAttachSession (one goroutine per connection, select over the
// client's frames and the PTY's output/status channels) and
// connection.WSReader/WSWriter (nhooyr.io/websocket wrapped for a single
// JSON-message-per-frame protocol instead of the teacher's control/data
// frame split).
package channel

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"github.com/codewiresh/terminald/internal/clockid"
	"github.com/codewiresh/terminald/internal/dispatch"
	"github.com/codewiresh/terminald/internal/protocol"
	"github.com/codewiresh/terminald/internal/ratelimit"
	"github.com/codewiresh/terminald/internal/session"
)

const rateLimitPerSecond = 200

// Config bundles the per-connection limits the endpoint enforces (spec
// §4.8, §5, §6).
type Config struct {
	AllowNonLocalhost bool
	MaxMessageBytes   int64
}

// Server accepts WebSocket upgrades on /ws and runs one connection loop
// per accepted client. It is the channel endpoint's process-wide state:
// the connection table spec §4.8 describes.
type Server struct {
	cfg        Config
	dispatcher *dispatch.Dispatcher
	manager    *session.Manager

	mu    sync.Mutex
	conns map[string]*conn
}

// NewServer constructs a channel Server over mgr.
func NewServer(cfg Config, mgr *session.Manager) *Server {
	return &Server{
		cfg:        cfg,
		dispatcher: dispatch.New(mgr),
		manager:    mgr,
		conns:      make(map[string]*conn),
	}
}

// ServeHTTP upgrades the request to a WebSocket and runs its connection
// loop until the client disconnects or a fatal protocol error closes it.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.AllowNonLocalhost && !isLocalhost(r.RemoteAddr) {
		http.Error(w, "forbidden: non-localhost peers are rejected", http.StatusForbidden)
		return
	}

	wsConn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Error("websocket accept failed", "err", err)
		return
	}
	wsConn.SetReadLimit(s.cfg.MaxMessageBytes)

	c := newConn(wsConn, s.dispatcher, s.manager)
	s.register(c)
	defer s.unregister(c)

	c.run(r.Context())
}

func (s *Server) register(c *conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[c.clientID] = c
}

func (s *Server) unregister(c *conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c.clientID)
}

// isLocalhost reports whether remoteAddr (a net.Conn.RemoteAddr-style
// "host:port" string) names a loopback address.
func isLocalhost(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return host == "localhost"
	}
	return ip.IsLoopback()
}

// conn is one accepted WebSocket connection: its bound session (if any),
// output/exit forwarder, and rate limiter. One goroutine (run) owns the
// receive loop; the forwarder is a second goroutine feeding the same
// write path.
type conn struct {
	clientID   string
	ws         *websocket.Conn
	dispatcher *dispatch.Dispatcher
	manager    *session.Manager
	limiter    *ratelimit.Window

	writeMu sync.Mutex

	bindMu       sync.RWMutex
	bound        string
	isBound      bool
	suppressExit string

	bindCh chan *session.Session
	doneCh chan struct{}
}

func newConn(ws *websocket.Conn, d *dispatch.Dispatcher, mgr *session.Manager) *conn {
	return &conn{
		clientID:   clockid.NewID(),
		ws:         ws,
		dispatcher: d,
		manager:    mgr,
		limiter:    ratelimit.New(rateLimitPerSecond, time.Second),
		bindCh:     make(chan *session.Session, 1),
		doneCh:     make(chan struct{}),
	}
}

// ClientID implements dispatch.Binder.
func (c *conn) ClientID() string { return c.clientID }

// BoundSessionID implements dispatch.Binder.
func (c *conn) BoundSessionID() (string, bool) {
	c.bindMu.RLock()
	defer c.bindMu.RUnlock()
	return c.bound, c.isBound
}

// Bind implements dispatch.Binder: it also rewires the output/exit
// forwarder onto the newly bound session (spec §4.8 "Output fan-out").
func (c *conn) Bind(sessionID string) {
	c.bindMu.Lock()
	c.bound = sessionID
	c.isBound = true
	c.bindMu.Unlock()

	if sess, ok := c.manager.GetSession(sessionID); ok {
		select {
		case c.bindCh <- sess:
		case <-c.doneCh:
		}
	}
}

// SuppressNextExit implements dispatch.Binder: the next session.exited
// the forwarder would push for sessionID is dropped, since the caller
// (session.terminate's handler) is about to send that same event as its
// direct reply.
func (c *conn) SuppressNextExit(sessionID string) {
	c.bindMu.Lock()
	c.suppressExit = sessionID
	c.bindMu.Unlock()
}

// run is the connection's whole lifetime: push server.hello, start the
// forwarder, then block in the receive loop until disconnect.
func (c *conn) run(ctx context.Context) {
	defer c.cleanup()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.forward(ctx)
	}()

	c.writeJSON(ctx, protocol.NewHello(clockid.NowISO()))
	c.receiveLoop(ctx)

	close(c.doneCh)
	wg.Wait()
}

// cleanup runs the spec §4.8 "Disconnect" steps: detach from every
// session this connection ever bound to. No transcripts are written for
// connect/disconnect itself.
func (c *conn) cleanup() {
	c.manager.DetachAllSessions(c.clientID)
	_ = c.ws.Close(websocket.StatusNormalClosure, "")
}

// receiveLoop implements spec §4.8's four-step pipeline: rate-limit,
// parse, validate, dispatch.
func (c *conn) receiveLoop(ctx context.Context) {
	for {
		_, data, err := c.ws.Read(ctx)
		if err != nil {
			return
		}

		if !c.limiter.Allow(time.Now()) {
			c.writeJSON(ctx, protocol.NewError(protocol.CodeRateLimitExceeded, "rate limit exceeded: more than 200 messages/second"))
			_ = c.ws.Close(websocket.StatusInternalError, "rate limit exceeded")
			return
		}

		req, err := protocol.ParseRequest(data)
		if err != nil {
			verr, ok := err.(*protocol.ValidationError)
			if !ok {
				c.writeJSON(ctx, protocol.NewError(protocol.CodeInternalError, "Unhandled server error. See logs."))
				continue
			}
			c.writeJSON(ctx, protocol.NewError(verr.Code, verr.Message))
			if verr.Fatal() {
				_ = c.ws.Close(websocket.StatusPolicyViolation, verr.Message)
				return
			}
			continue
		}

		c.handle(ctx, req)
	}
}

// handle dispatches one parsed request, recovering from any handler
// panic into an INTERNAL_ERROR reply per spec §4.8 step 4.
func (c *conn) handle(ctx context.Context, req *protocol.Request) {
	reply, err := c.safeDispatch(req)
	if err != nil {
		code, message := protocol.CodeInternalError, err.Error()
		if oe, ok := err.(*session.OpError); ok {
			code, message = oe.Code, oe.Message
		}
		c.writeJSON(ctx, protocol.NewError(code, message))
		return
	}
	if reply != nil {
		c.writeJSON(ctx, reply)
	}
}

func (c *conn) safeDispatch(req *protocol.Request) (reply any, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("unhandled panic in dispatch handler", "type", req.Type, "recovered", r)
			err = &session.OpError{Code: protocol.CodeInternalError, Message: "Unhandled server error. See logs."}
		}
	}()
	return c.dispatcher.Dispatch(req, c)
}

// forward is the output/exit fan-out goroutine (spec §4.8): it
// subscribes to whichever session is currently bound, forwarding
// term.out and session.exited, and re-subscribes whenever Bind swaps the
// target. A session.exited push is dropped if SuppressNextExit marked it
// as already delivered via a terminate handler's direct reply.
func (c *conn) forward(ctx context.Context) {
	var sess *session.Session
	var subID uint64
	var outCh <-chan []byte
	var exitCh <-chan struct{}

	unsubscribe := func() {
		if sess != nil {
			sess.UnsubscribeOutput(subID)
		}
	}
	defer unsubscribe()

	for {
		select {
		case newSess := <-c.bindCh:
			unsubscribe()
			sess = newSess
			if sess != nil {
				subID, outCh = sess.SubscribeOutput()
				exitCh = sess.WaitExit()
			} else {
				outCh = nil
				exitCh = nil
			}

		case data, ok := <-outCh:
			if !ok {
				outCh = nil
				continue
			}
			c.writeJSON(ctx, protocol.NewTermOut(sess.ID, string(data)))

		case <-exitCh:
			c.bindMu.Lock()
			suppressed := c.suppressExit == sess.ID
			if suppressed {
				c.suppressExit = ""
			}
			c.bindMu.Unlock()
			if !suppressed {
				c.writeJSON(ctx, protocol.NewSessionExited(sess.ID, sess.ExitCode()))
			}
			exitCh = nil // session.exited fires at most once per connection per session (spec §5)

		case <-c.doneCh:
			return
		}
	}
}

// writeJSON marshals v and sends it as a single text frame. It is a
// no-op if the connection has already closed, per spec §4.8: "Both are
// safe no-ops if the channel has already closed."
func (c *conn) writeJSON(ctx context.Context, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to marshal outbound message", "err", err)
		return
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.ws.Write(writeCtx, websocket.MessageText, data); err != nil {
		slog.Debug("write to closed or broken connection dropped", "client", c.clientID, "err", err)
	}
}
