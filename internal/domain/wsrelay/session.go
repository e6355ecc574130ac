// Package wsrelay implements the per-connection concurrency contract of
// C15: relaying messages between a client and a backend WebSocket peer
// while enforcing idle/lifetime/ping timeouts and a per-message rate
// limit, and tearing down both sides with a matching close reason. The
// wire-format upgrade handshake itself is out of scope (spec.md §1); a
// Session operates on two already-established Conn values.
package wsrelay

import (
	"context"
	"encoding/binary"
	"log/slog"
	"sync"
	"time"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/ratelimit"
	"github.com/Sentinel-Gate/Sentinelgate/internal/port/outbound"
)

// Close codes, per spec.md §6. Values match RFC 6455's status-code
// ranges (and gorilla/websocket's same-valued exported constants), so a
// concrete Conn adapter needs no translation.
const (
	CloseNormal      = 1000
	CloseGoingAway   = 1001
	ClosePingTimeout = 1002
	CloseUnexpected  = 1011
	CloseRateLimited = 4429
)

// Opcodes for control frames, per RFC 6455 §11.8.
const (
	opClose = 8
	opPing  = 9
)

// Conn is the minimal surface Session needs from one peer of an upgraded
// WebSocket session. A real WebSocket library's connection type (e.g.
// gorilla/websocket's *Conn) satisfies this directly.
type Conn interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Config tunes one Session's timers. A zero value for any timeout
// disables that check, per spec.md §4.15's "optional ping" language.
type Config struct {
	IdleTimeout  time.Duration
	MaxLifetime  time.Duration
	PingInterval time.Duration
	PingTimeout  time.Duration
}

// Session relays messages between a client and a backend Conn for the
// lifetime of one upgraded WebSocket request.
type Session struct {
	client, backend Conn
	cfg             Config

	limiter  outbound.RateLimiter
	msgKey   ratelimit.RateLimitKey
	msgLimit ratelimit.EffectiveRateLimit

	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

// NewSession creates a Session. limiter may be nil, in which case the
// per-message rate limit is skipped entirely.
func NewSession(client, backend Conn, cfg Config, limiter outbound.RateLimiter, msgKey ratelimit.RateLimitKey, msgLimit ratelimit.EffectiveRateLimit, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		client: client, backend: backend, cfg: cfg,
		limiter: limiter, msgKey: msgKey, msgLimit: msgLimit,
		logger: logger,
	}
}

// Run relays in both directions until either side disconnects, a timer
// fires, or ctx is cancelled. It blocks until the session has fully
// ended, then releases the per-connection message-rate bucket via
// RemoveKeysMatching.
func (s *Session) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.cfg.MaxLifetime > 0 {
		lifetime := time.AfterFunc(s.cfg.MaxLifetime, func() {
			s.closeBoth(CloseNormal, "lifetime")
			cancel()
		})
		defer lifetime.Stop()
	}

	idleTimer := s.startIdleTimer(cancel)
	if idleTimer != nil {
		defer idleTimer.Stop()
	}

	if s.cfg.PingInterval > 0 {
		pongCh := make(chan struct{}, 1)
		s.client.SetPongHandler(func(string) error {
			select {
			case pongCh <- struct{}{}:
			default:
			}
			return nil
		})
		go s.pingLoop(ctx, pongCh, cancel)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); s.relay(ctx, s.client, s.backend, idleTimer) }()
	go func() { defer wg.Done(); s.relay(ctx, s.backend, s.client, idleTimer) }()
	wg.Wait()

	s.closeBoth(CloseNormal, "session ended")

	if s.limiter != nil {
		if err := s.limiter.RemoveKeysMatching(context.Background(), s.msgKey.String()); err != nil {
			s.logger.Warn("failed to clear websocket message rate-limit bucket", "error", err, "key", s.msgKey.String())
		}
	}
}

// relay pumps messages from one peer to the other, applying the
// per-message rate limit before each relayed write and resetting the
// idle timer on every observed message.
func (s *Session) relay(ctx context.Context, from, to Conn, idleTimer *time.Timer) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		mt, data, err := from.ReadMessage()
		if err != nil {
			s.closeBoth(CloseNormal, "peer closed")
			return
		}
		s.resetIdleTimer(idleTimer)

		if s.limiter != nil && s.limiter.IsEnabled() {
			decision, derr := s.limiter.CheckAndConsume(ctx, s.msgKey, s.msgLimit)
			if derr != nil {
				s.logger.Warn("websocket message rate limit check failed, allowing message", "error", derr)
			} else if !decision.Allowed {
				s.closeBoth(CloseRateLimited, "rate limited")
				return
			}
		}

		if werr := to.WriteMessage(mt, data); werr != nil {
			s.closeBoth(CloseUnexpected, "relay write failed")
			return
		}
	}
}

func (s *Session) startIdleTimer(cancel func()) *time.Timer {
	if s.cfg.IdleTimeout <= 0 {
		return nil
	}
	return time.AfterFunc(s.cfg.IdleTimeout, func() {
		s.closeBoth(CloseNormal, "idle")
		cancel()
	})
}

func (s *Session) resetIdleTimer(t *time.Timer) {
	if t == nil {
		return
	}
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(s.cfg.IdleTimeout)
}

func (s *Session) pingLoop(ctx context.Context, pongCh <-chan struct{}, cancel func()) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.client.WriteControl(opPing, nil, time.Now().Add(time.Second)); err != nil {
				s.closeBoth(CloseUnexpected, "ping write failed")
				cancel()
				return
			}
			select {
			case <-pongCh:
			case <-time.After(s.cfg.PingTimeout):
				s.closeBoth(ClosePingTimeout, "ping timeout")
				cancel()
				return
			case <-ctx.Done():
				return
			}
		}
	}
}

// closeBoth sends a matching close frame to both peers and closes them.
// Idempotent: only the first call has any effect.
func (s *Session) closeBoth(code int, reason string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	msg := closeFramePayload(code, reason)
	deadline := time.Now().Add(time.Second)
	_ = s.client.WriteControl(opClose, msg, deadline)
	_ = s.backend.WriteControl(opClose, msg, deadline)
	_ = s.client.Close()
	_ = s.backend.Close()
}

// closeFramePayload builds an RFC 6455 §5.5.1 close-frame body: a 2-byte
// big-endian status code followed by an optional UTF-8 reason, truncated
// to fit the 125-byte control-frame payload limit.
func closeFramePayload(code int, reason string) []byte {
	const maxReasonBytes = 123 // 125 - 2 bytes of status code
	if len(reason) > maxReasonBytes {
		reason = reason[:maxReasonBytes]
	}
	buf := make([]byte, 2+len(reason))
	binary.BigEndian.PutUint16(buf, uint16(code))
	copy(buf[2:], reason)
	return buf
}
