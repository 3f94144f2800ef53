// Package pure3270 implements a TN3270/TN3270E terminal emulator client:
// Telnet and TN3270E negotiation, the 3270 data-stream codec, the screen
// buffer/field model, and a Session Coordinator tying them together, per
// spec.md §1-§9. Session is the single entry point driving one connection;
// its suspending operations take a context.Context as the Go equivalent of
// the source's async suspension points (spec.md §5).
package pure3270

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/go3270/pure3270/internal/codepage"
	"github.com/go3270/pure3270/internal/dsbuild"
	"github.com/go3270/pure3270/internal/dsparse"
	"github.com/go3270/pure3270/internal/screen"
	"github.com/go3270/pure3270/internal/telemetry"
	"github.com/go3270/pure3270/internal/telnet"
	"github.com/go3270/pure3270/internal/transport"
	"github.com/go3270/pure3270/internal/vt100"
)

// Event is one structured negotiation/parse/decision event, returned by
// Session.TraceEvents when tracing is enabled (spec.md §4.7/§6).
type Event = telemetry.Event

// SessionState is the Session's lifecycle state, per spec.md §4.7.
type SessionState int

const (
	StateDisconnected SessionState = iota
	StateNegotiating
	StateReady
	StateSending
	StateClosing
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateNegotiating:
		return "NEGOTIATING"
	case StateReady:
		return "READY"
	case StateSending:
		return "SENDING"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

type waiterEntry struct {
	predicate func(screenText string) bool
	ch        chan struct{}
}

type cmdResult struct {
	val any
	err error
}

// Session is the Session Coordinator (spec.md §4.7): it owns the Transport,
// Negotiator, and Screen Buffer for exactly one connection. All mutation of
// those goes through a single internal goroutine (runLoop) reached via the
// commands channel, so the FIFO ordering guarantee (spec.md §5) holds
// regardless of which caller goroutine invokes a Session method.
type Session struct {
	id  string
	cfg *Config
	log *zap.Logger

	sink *telemetry.Sink
	buf  *screen.Buffer
	tr   *transport.Transport
	neg  *telnet.Negotiator
	vt   *vt100.Parser

	negResult telnet.Result

	stateMu sync.RWMutex
	state   SessionState

	// insertMode is owned exclusively by runLoop's goroutine, like buf.
	insertMode bool

	commands chan func()
	events   chan transport.Event
	waiters  []waiterEntry

	group  *errgroup.Group
	cancel context.CancelFunc

	closeOnce sync.Once
	closeErr  error
}

// New constructs a Session from a validated Config. Call Connect to open
// the connection and drive negotiation.
func New(cfg *Config) *Session {
	logger, err := zap.NewProduction()
	if err != nil {
		logger = zap.NewNop()
	}
	sink := telemetry.New(logger, cfg.Trace)

	buf := screen.New(24, 80)
	if cp, ok := codepage.Lookup(cfg.CodePage); ok {
		buf.SetCodepage(cp)
	}

	return &Session{
		id:       uuid.NewString(),
		cfg:      cfg,
		log:      logger,
		sink:     sink,
		buf:      buf,
		state:    StateDisconnected,
		commands: make(chan func(), 16),
	}
}

// ID returns the session's correlation ID, stamped on the Session's
// "session connected" and "session closed" log lines (spec.md §0 domain
// stack: google/uuid). Trace events do not carry it.
func (s *Session) ID() string { return s.id }

// State returns the Session's current lifecycle state.
func (s *Session) State() SessionState {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

func (s *Session) setState(st SessionState) {
	s.stateMu.Lock()
	s.state = st
	s.stateMu.Unlock()
}

// Connect drives Transport + Negotiator to a terminal negotiation state,
// per spec.md §4.7. On BOUND/BASIC_TN3270 it returns success; on ASCII_NVT
// it returns success with AsciiMode set on the result accessible via
// NegotiationResult; on FAIL it returns a NegotiationError/NegotiationTimeout.
func (s *Session) Connect(ctx context.Context) error {
	s.setState(StateNegotiating)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	dialCtx, cancelDial := context.WithTimeout(ctx, s.cfg.Timeouts.Connect)
	defer cancelDial()

	tr, err := transport.Dial(dialCtx, addr, s.cfg.tlsClientConfig())
	if err != nil {
		s.setState(StateDisconnected)
		return &ConnectError{Cause: err}
	}
	s.tr = tr

	neg := telnet.New(tr, s.buf, s.sink, telnet.Config{
		TerminalModel:        s.cfg.TerminalModel,
		LUName:               s.cfg.LUName,
		FunctionsPolicy:      s.cfg.FunctionsPolicy,
		AsciiFallbackAllowed: s.cfg.AsciiFallbackAllowed,
		NegotiateTimeout:     s.cfg.Timeouts.Negotiate,
	})
	s.neg = neg

	res, err := neg.Negotiate(ctx)
	if err != nil {
		s.setState(StateDisconnected)
		tr.Close(err)
		var timeout *telnet.NegotiationTimeout
		if errors.As(err, &timeout) {
			return &NegotiationTimeout{Cause: err}
		}
		return &NegotiationError{Cause: err}
	}
	s.negResult = res

	if res.FourteenBit {
		s.buf.SetFourteenBit(true)
	}
	if res.AsciiMode {
		s.vt = vt100.New(s.buf)
	}

	groupCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	group, gctx := errgroup.WithContext(groupCtx)
	s.group = group
	s.events = make(chan transport.Event, 16)

	group.Go(func() error { return s.readerPump(gctx) })
	group.Go(func() error { return s.runLoop(gctx) })

	s.setState(StateReady)
	s.log.Info("session connected",
		zap.String("session_id", s.id),
		zap.String("state", res.State.String()),
		zap.String("device_type", res.DeviceType),
	)
	return nil
}

// NegotiationResult returns the Result Connect's negotiation produced.
func (s *Session) NegotiationResult() telnet.Result { return s.negResult }

// readerPump is the "pump Transport read events into a channel" goroutine
// spec.md §5's Go mapping describes. A per-read deadline bounds each
// ReadEvent call; deadline expiry is not fatal and simply loops, letting
// ctx cancellation (from Close or a group peer's error) be the real exit
// signal.
func (s *Session) readerPump(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		readCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeouts.Read)
		ev, err := s.tr.ReadEvent(readCtx)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				continue
			}
			return &TransportError{Cause: err}
		}
		select {
		case s.events <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
		if ev.Kind == transport.EventEOF {
			return &TransportError{Cause: errors.New("connection closed by host")}
		}
	}
}

// runLoop is the single goroutine that owns the Screen Buffer, Negotiator
// state, and waiter list, processing inbound events and user commands in
// the order they arrive, per spec.md §5's FIFO guarantee.
func (s *Session) runLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-s.events:
			s.applyEvent(ev)
			s.checkWaiters()
		case cmd := <-s.commands:
			cmd()
			s.checkWaiters()
		}
	}
}

func (s *Session) applyEvent(ev transport.Event) {
	switch ev.Kind {
	case transport.EventRecord:
		res, err := dsparse.Parse(s.buf, ev.Bytes)
		if err != nil {
			s.sink.Record(telemetry.Event{Kind: "parse_error",
				Fields: map[string]any{"error": err.Error()}})
			return
		}
		for _, e := range res.Events {
			s.sink.Record(telemetry.Event{Kind: e.Kind,
				Fields: map[string]any{"message": e.Message}})
		}
		if res.ReadRequested {
			s.respondReadRequest(res)
		}
	case transport.EventAsciiChunk:
		if s.vt != nil {
			s.vt.Feed(ev.Bytes)
		}
	case transport.EventTelnetCommand, transport.EventSubnegotiation:
		s.sink.Record(telemetry.Event{Kind: "post_negotiate_telnet_event"})
	}
}

func (s *Session) respondReadRequest(res dsparse.Result) {
	aid := s.buf.AIDPending()
	var out []byte
	if res.Command == dsparse.CmdReadBuffer {
		out = dsbuild.BuildReadBuffer(s.buf, aid, s.buf.GetCursor())
	} else {
		out = dsbuild.BuildReadModified(s.buf, aid, s.buf.GetCursor(), res.ReadAll)
	}
	if err := s.tr.WriteRecord(transport.DataType3270Data, out); err != nil {
		s.sink.Record(telemetry.Event{Kind: "write_error",
			Fields: map[string]any{"error": err.Error()}})
	}
}

func (s *Session) checkWaiters() {
	if len(s.waiters) == 0 {
		return
	}
	text := s.buf.ToText()
	remaining := s.waiters[:0]
	for _, w := range s.waiters {
		if w.predicate(text) {
			select {
			case w.ch <- struct{}{}:
			default:
			}
		} else {
			remaining = append(remaining, w)
		}
	}
	s.waiters = remaining
}

// do submits fn to the owning goroutine and waits for its result, honoring
// ctx cancellation on both the submit and the wait side.
func (s *Session) do(ctx context.Context, fn func() (any, error)) (any, error) {
	switch s.State() {
	case StateClosed, StateClosing, StateDisconnected:
		return nil, &SessionClosed{}
	}
	done := make(chan cmdResult, 1)
	select {
	case s.commands <- func() {
		v, err := fn()
		done <- cmdResult{v, err}
	}:
	case <-ctx.Done():
		return nil, &Cancelled{}
	}
	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		return nil, &Cancelled{}
	}
}

// SendAID builds a Read-Modified reply from the current screen using aid
// and writes it, clearing the pending AID, per spec.md §4.7.
func (s *Session) SendAID(ctx context.Context, aid AID) error {
	_, err := s.do(ctx, func() (any, error) {
		s.buf.SetAIDPending(byte(aid))
		out := dsbuild.BuildReadModified(s.buf, byte(aid), s.buf.GetCursor(), false)
		werr := s.tr.WriteRecord(transport.DataType3270Data, out)
		s.buf.SetAIDPending(0)
		if werr != nil {
			return nil, &TransportError{Cause: werr}
		}
		return nil, nil
	})
	return err
}

// Key resolves a symbolic key name to its effect, per spec.md §6's closed
// catalog: an AID send, a local buffer mutation, a cursor move, the Insert
// toggle, or SysReq. Unknown names return UnknownKey.
func (s *Session) Key(ctx context.Context, k Key) error {
	if aid, ok := keyAIDs[k]; ok {
		return s.SendAID(ctx, aid)
	}
	if localKeys[k] {
		_, err := s.do(ctx, func() (any, error) {
			return nil, applyLocalKey(s.buf, k)
		})
		return err
	}
	switch k {
	case KeyInsert:
		_, err := s.do(ctx, func() (any, error) {
			s.insertMode = !s.insertMode
			return nil, nil
		})
		return err
	case KeySysReq:
		return s.sendSysReq(ctx)
	}
	return &UnknownKey{Name: string(k)}
}

func (s *Session) sendSysReq(ctx context.Context) error {
	_, err := s.do(ctx, func() (any, error) {
		if s.negResult.Functions&telnet.FuncSysReq == 0 {
			return nil, &NegotiationError{Cause: errors.New("SYSREQ function was not negotiated")}
		}
		if werr := s.tr.WriteRecord(transport.DataTypeRequest, nil); werr != nil {
			return nil, &TransportError{Cause: werr}
		}
		return nil, nil
	})
	return err
}

// InsertText writes EBCDIC-encoded characters at the cursor, respecting
// field protection unless Config.InsertCircumventProtected is set, per
// spec.md §4.7.
func (s *Session) InsertText(ctx context.Context, text string) error {
	_, err := s.do(ctx, func() (any, error) {
		return nil, s.insertTextLocal(text)
	})
	return err
}

func (s *Session) insertTextLocal(text string) error {
	cp := s.buf.Codepage()
	addr := s.buf.GetCursor()
	for _, r := range text {
		if f := s.buf.FieldAt(addr); f != nil && f.Protected() && !s.cfg.InsertCircumventProtected {
			return &ProtectedFieldError{Addr: addr}
		}
		if s.insertMode {
			insertShiftRight(s.buf, addr)
		}
		s.buf.WriteChar(addr, cp.Reverse(r), true)
		addr = (addr + 1) % s.buf.Size()
	}
	return s.buf.SetCursor(addr)
}

// ReadScreen returns a text snapshot of the Screen Buffer. It hops through
// the owning goroutine like every other operation here, so it never races
// an in-flight inbound record, even though spec.md §5 classifies it as
// synchronous/non-suspending (no network I/O is ever involved).
func (s *Session) ReadScreen(ctx context.Context) (string, error) {
	v, err := s.do(ctx, func() (any, error) {
		return s.buf.ToText(), nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// WaitFor resolves when predicate over the current screen text becomes
// true, or fails with Timeout after timeout elapses. It derives its own
// child context and only ever cancels itself, per spec.md §5's carve-out.
func (s *Session) WaitFor(ctx context.Context, predicate func(screenText string) bool, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resultCh := make(chan struct{}, 1)
	_, err := s.do(waitCtx, func() (any, error) {
		if predicate(s.buf.ToText()) {
			resultCh <- struct{}{}
			return nil, nil
		}
		s.waiters = append(s.waiters, waiterEntry{predicate: predicate, ch: resultCh})
		return nil, nil
	})
	if err != nil {
		return err
	}

	select {
	case <-resultCh:
		return nil
	case <-waitCtx.Done():
		s.do(context.Background(), func() (any, error) {
			s.removeWaiter(resultCh)
			return nil, nil
		})
		if errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
			if s.cfg.FatalTimeouts {
				s.Close()
			}
			return &Timeout{Message: "wait_for timed out"}
		}
		return &Cancelled{}
	}
}

func (s *Session) removeWaiter(ch chan struct{}) {
	remaining := s.waiters[:0]
	for _, w := range s.waiters {
		if w.ch != ch {
			remaining = append(remaining, w)
		}
	}
	s.waiters = remaining
}

// TraceEvents returns the structured negotiation/parse/decision events
// recorded since Connect, when Config.Trace is enabled; otherwise nil.
func (s *Session) TraceEvents() []Event { return s.sink.Events() }

// Close quiesces the reader/run goroutines, closes the transport, and
// transitions the Session to CLOSED. Idempotent, per spec.md §4.7.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.setState(StateClosing)
		if s.cancel != nil {
			s.cancel()
		}
		if s.group != nil {
			if werr := s.group.Wait(); werr != nil && !errors.Is(werr, context.Canceled) {
				s.closeErr = werr
			}
		}
		if s.tr != nil {
			if cerr := s.tr.Close(s.closeErr); cerr != nil && s.closeErr == nil {
				s.closeErr = cerr
			}
		}
		s.setState(StateClosed)
		s.log.Info("session closed", zap.String("session_id", s.id))
		_ = s.log.Sync()
	})
	return s.closeErr
}
