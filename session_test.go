package pure3270

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go3270/pure3270/internal/transport"
)

// newSessionHarness starts a local TCP listener standing in for the host
// and returns a not-yet-connected Session configured to dial it, plus a
// channel delivering the host-side Transport once accepted.
func newSessionHarness(t *testing.T) (*Session, chan *transport.Transport) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	hostCh := make(chan *transport.Transport, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		hostCh <- transport.New(conn, 0)
	}()

	addr := ln.Addr().(*net.TCPAddr)
	cfg, err := NewConfig(Config{
		Host:                 addr.IP.String(),
		Port:                 addr.Port,
		AsciiFallbackAllowed: true,
		Timeouts: Timeouts{
			Connect:   2 * time.Second,
			Negotiate: 300 * time.Millisecond,
			Read:      200 * time.Millisecond,
		},
	})
	require.NoError(t, err)
	return New(cfg), hostCh
}

// TestSessionConnectFallsBackToASCII drives a Session against a host that
// never replies to telnet negotiation, confirming Connect succeeds into
// ASCII-NVT mode rather than erroring (spec.md scenario S3).
func TestSessionConnectFallsBackToASCII(t *testing.T) {
	s, hostCh := newSessionHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, s.Connect(ctx))
	defer s.Close()

	<-hostCh
	assert.Equal(t, StateReady, s.State())
	assert.True(t, s.NegotiationResult().AsciiMode)
}

// TestSessionSendAIDWritesReadModifiedRecord confirms Key(Enter) produces a
// Read-Modified record the host can read back as an EventRecord.
func TestSessionSendAIDWritesReadModifiedRecord(t *testing.T) {
	s, hostCh := newSessionHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, s.Connect(ctx))
	defer s.Close()

	host := <-hostCh
	require.NoError(t, s.Key(ctx, KeyEnter))

	readCtx, readCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer readCancel()
	ev, err := host.ReadEvent(readCtx)
	require.NoError(t, err)
	require.Equal(t, transport.EventRecord, ev.Kind)
	require.True(t, len(ev.Bytes) >= 1)
	assert.Equal(t, byte(AIDEnter), ev.Bytes[0])
}

func TestSessionInsertTextAndReadScreen(t *testing.T) {
	s, hostCh := newSessionHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, s.Connect(ctx))
	defer s.Close()
	<-hostCh

	require.NoError(t, s.InsertText(ctx, "HI"))
	text, err := s.ReadScreen(ctx)
	require.NoError(t, err)
	assert.Contains(t, text, "HI")
}

func TestSessionWaitForTimesOutWhenPredicateNeverTrue(t *testing.T) {
	s, hostCh := newSessionHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, s.Connect(ctx))
	defer s.Close()
	<-hostCh

	err := s.WaitFor(ctx, func(string) bool { return false }, 100*time.Millisecond)
	require.Error(t, err)
	var timeout *Timeout
	assert.ErrorAs(t, err, &timeout)
}

func TestSessionWaitForResolvesWhenPredicateAlreadyTrue(t *testing.T) {
	s, hostCh := newSessionHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, s.Connect(ctx))
	defer s.Close()
	<-hostCh

	require.NoError(t, s.WaitFor(ctx, func(string) bool { return true }, time.Second))
}

func TestSessionCloseIsIdempotentAndClosesSession(t *testing.T) {
	s, hostCh := newSessionHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, s.Connect(ctx))
	<-hostCh

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, StateClosed, s.State())

	_, err := s.ReadScreen(context.Background())
	require.Error(t, err)
	var closed *SessionClosed
	assert.ErrorAs(t, err, &closed)
}

func TestSessionKeyUnknownReturnsUnknownKey(t *testing.T) {
	s, hostCh := newSessionHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, s.Connect(ctx))
	defer s.Close()
	<-hostCh

	err := s.Key(ctx, Key("Bogus"))
	require.Error(t, err)
	var uk *UnknownKey
	assert.ErrorAs(t, err, &uk)
}

func TestSessionSysReqFailsWithoutNegotiatedFunction(t *testing.T) {
	s, hostCh := newSessionHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, s.Connect(ctx))
	defer s.Close()
	<-hostCh

	err := s.Key(ctx, KeySysReq)
	require.Error(t, err)
}
