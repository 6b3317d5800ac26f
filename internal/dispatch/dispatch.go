// Package dispatch routes a parsed, validated protocol.Request to the
// session.Manager operation it names and shapes the reply (spec §4.8).
// It is the "handler table" the teacher's node.handleClient expresses as
// a switch on req.Type, re-expressed per the redesign notes as tagged
// variants dispatched through an exhaustive match.
package dispatch

import (
	"github.com/codewiresh/terminald/internal/protocol"
	"github.com/codewiresh/terminald/internal/session"
)

// Binder is the connection-local state a dispatcher needs to read and
// mutate: which session (if any) this connection is currently bound to.
// The channel package owns the concrete implementation; dispatch never
// sees a websocket connection directly.
type Binder interface {
	ClientID() string
	BoundSessionID() (string, bool)
	Bind(sessionID string)

	// SuppressNextExit tells this connection's output/exit forwarder to
	// drop the next session.exited push for sessionID, since the
	// terminate handler is about to send that same event itself as the
	// direct reply (spec §4.8: the reply "is also what the PTY trampoline
	// pushes to any attached clients" — one event, not two, for the
	// connection that issued the terminate).
	SuppressNextExit(sessionID string)
}

// Dispatcher turns one validated Request into zero or one outbound
// message, plus any manager-level side effects (binding, termination).
type Dispatcher struct {
	Manager *session.Manager
}

// New constructs a Dispatcher over mgr.
func New(mgr *session.Manager) *Dispatcher {
	return &Dispatcher{Manager: mgr}
}

// Dispatch handles req for the connection represented by b, returning
// the single outbound message to send (nil for term.in/term.resize
// success, per spec §4.8). A returned *session.OpError is already the
// sum type dispatch produces on failure; the caller maps it to a wire
// "error" message.
func (d *Dispatcher) Dispatch(req *protocol.Request, b Binder) (any, error) {
	switch req.Type {
	case protocol.TypeSessionCreate:
		return d.handleCreate(b)
	case protocol.TypeSessionAttach:
		return d.handleAttach(req, b)
	case protocol.TypeSessionList:
		return d.handleList()
	case protocol.TypeSessionTerminate:
		return d.handleTerminate(req, b)
	case protocol.TypeSessionRename:
		return d.handleRename(req)
	case protocol.TypeTermIn:
		return d.handleTermIn(req, b)
	case protocol.TypeTermResize:
		return d.handleTermResize(req)
	default:
		// ParseRequest already rejects unknown types before this is ever
		// reached; this guards against a future handler table drifting
		// out of sync with protocol's schema registry.
		return nil, &session.OpError{Code: protocol.CodeInternalError, Message: "no handler registered for type: " + req.Type}
	}
}

func (d *Dispatcher) handleCreate(b Binder) (any, error) {
	sess, err := d.Manager.CreateSession("")
	if err != nil {
		return nil, err
	}
	sess.AttachClient(b.ClientID())
	b.Bind(sess.ID)
	return protocol.NewSessionCreated(d.Manager.ToSessionInfo(sess)), nil
}

func (d *Dispatcher) handleAttach(req *protocol.Request, b Binder) (any, error) {
	sess, err := d.Manager.AttachSession(req.SessionID, b.ClientID())
	if err != nil {
		return nil, err
	}
	b.Bind(sess.ID)
	return protocol.NewSessionAttached(sess.ID, sess.Status()), nil
}

func (d *Dispatcher) handleList() (any, error) {
	sessions, err := d.Manager.ListSessions()
	if err != nil {
		return nil, &session.OpError{Code: protocol.CodeInternalError, Message: err.Error()}
	}
	return protocol.NewSessionListResult(sessions), nil
}

func (d *Dispatcher) handleTerminate(req *protocol.Request, b Binder) (any, error) {
	b.SuppressNextExit(req.SessionID)
	exitCode, err := d.Manager.TerminateSession(req.SessionID)
	if err != nil {
		return nil, err
	}
	return protocol.NewSessionExited(req.SessionID, exitCode), nil
}

func (d *Dispatcher) handleRename(req *protocol.Request) (any, error) {
	if err := d.Manager.RenameSession(req.SessionID, req.Name); err != nil {
		return nil, err
	}
	return protocol.NewSessionRenamed(req.SessionID, req.Name), nil
}

func (d *Dispatcher) handleTermIn(req *protocol.Request, b Binder) (any, error) {
	bound, ok := b.BoundSessionID()
	if !ok || bound != req.SessionID {
		return nil, &session.OpError{Code: protocol.CodeNotAttached, Message: "term.in on a session this connection is not attached to"}
	}
	if err := d.Manager.SendInput(req.SessionID, req.Data); err != nil {
		return nil, err
	}
	return nil, nil
}

func (d *Dispatcher) handleTermResize(req *protocol.Request) (any, error) {
	if err := d.Manager.ResizeSession(req.SessionID, req.Cols, req.Rows); err != nil {
		return nil, err
	}
	return nil, nil
}
