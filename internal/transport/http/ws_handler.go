package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/relaywire/relayd/internal/auth"
	"github.com/relaywire/relayd/internal/core"
	"github.com/relaywire/relayd/internal/proto"
	"github.com/relaywire/relayd/internal/utils"
)

// maxNonConformingFrames is how many non-text frames a client may send
// before the connection is closed as a protocol violation.
const maxNonConformingFrames = 10

var errTooManyBadFrames = errors.New("too many non-conforming frames")

// WSHandler upgrades HTTP connections into relay sessions. Each session
// authenticates with a token as its first frame, then runs a reader
// goroutine (subscription commands) and a forwarder goroutine (bus
// deliveries) until either one finishes.
type WSHandler struct {
	bus  *core.Bus
	auth *auth.Service
	log  *zerolog.Logger
}

// NewWSHandler builds the WebSocket endpoint handler.
func NewWSHandler(bus *core.Bus, authService *auth.Service, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{bus: bus, auth: authService, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()
	remote := r.RemoteAddr

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Str("remote", remote).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	h.log.Info().Str("remote", remote).Msg("client connected")

	identity, ok := h.handshake(ctx, conn, remote)
	if !ok {
		// The rejection reply and close are already sent; the session
		// never starts and never subscribes to the bus.
		return
	}

	if err := wsjson.Write(ctx, conn, proto.Welcome()); err != nil {
		h.log.Warn().Err(err).Str("remote", remote).Msg("failed to send welcome")
		return
	}

	sub := h.bus.Subscribe()
	defer sub.Close()

	sess := &session{
		id:       utils.NewID(),
		conn:     conn,
		identity: identity,
		filter:   core.NewFilter(),
		sub:      sub,
		remote:   remote,
		log:      h.log,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- sess.readLoop(ctx)
	}()
	go func() {
		errCh <- sess.forwardLoop(ctx)
	}()

	// Whichever half finishes first wins; the loser is cancelled and
	// drained so the transport is torn down exactly once.
	err = <-errCh
	cancel()
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("remote", remote).Str("handle", identity.Handle).Msg("session closed with error")
		}
	}

	conn.Close(status, reason)
	h.log.Info().Str("remote", remote).Str("handle", identity.Handle).Msg("client disconnected")
}

// handshake reads the first frame and validates it as a token. The reply
// protocol is fixed: invalid tokens get a JSON rejection and a close frame,
// with no distinction between malformed, expired and badly-signed.
func (h *WSHandler) handshake(ctx context.Context, conn *websocket.Conn, remote string) (core.Identity, bool) {
	typ, data, err := conn.Read(ctx)
	if err != nil {
		h.log.Warn().Err(err).Str("remote", remote).Msg("no handshake frame")
		return core.Identity{}, false
	}
	if typ != websocket.MessageText {
		h.reject(ctx, conn, remote)
		return core.Identity{}, false
	}

	identity, err := h.auth.ValidateToken(string(data))
	if err != nil {
		h.reject(ctx, conn, remote)
		return core.Identity{}, false
	}

	return identity, true
}

func (h *WSHandler) reject(ctx context.Context, conn *websocket.Conn, remote string) {
	h.log.Warn().Str("remote", remote).Msg("handshake rejected")
	_ = wsjson.Write(ctx, conn, proto.InvalidToken())
	_ = conn.Close(websocket.StatusPolicyViolation, "invalid token")
}

// session is one authenticated relay connection while it is active. The
// filter is written by readLoop and read by forwardLoop; the write mutex
// serializes the two halves on the shared outbound path (command acks from
// the reader interleave with forwarded messages in write order).
type session struct {
	id       string
	conn     *websocket.Conn
	identity core.Identity
	filter   *core.Filter
	sub      *core.Subscriber
	remote   string
	log      *zerolog.Logger

	writeMu   sync.Mutex
	badFrames int
}

func (s *session) writeJSON(ctx context.Context, v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return wsjson.Write(ctx, s.conn, v)
}

// readLoop consumes client frames. Text frames are subscription commands;
// ping frames are answered by the websocket library on the same write path.
// Anything else counts toward the non-conforming frame threshold.
func (s *session) readLoop(ctx context.Context) error {
	for {
		typ, data, err := s.conn.Read(ctx)
		if err != nil {
			// Close frames and dead transports both land here; the
			// caller maps normal closures to a clean teardown.
			return err
		}

		if typ != websocket.MessageText {
			s.badFrames++
			if s.badFrames > maxNonConformingFrames {
				s.log.Warn().Str("remote", s.remote).Str("conn_id", s.id).Msg("non-conforming frames exceeded threshold")
				_ = s.conn.Close(websocket.StatusUnsupportedData, "this server supports pings and utf-8 text")
				return errTooManyBadFrames
			}
			continue
		}

		if len(data) > proto.MaxChannelNameBytes {
			// Oversize commands are refused without touching the filter
			// and without ending the session.
			if err := s.writeJSON(ctx, proto.ChannelNameTooLong()); err != nil {
				return err
			}
			continue
		}

		payload := string(data)
		switch payload {
		case proto.CommandAll:
			s.filter.SetAll()
		case proto.CommandNone:
			s.filter.SetNone()
		default:
			s.filter.SetNamed(payload)
		}
		s.log.Debug().Str("conn_id", s.id).Str("command", payload).Msg("filter changed")

		if err := s.writeJSON(ctx, proto.ChannelChanged(payload)); err != nil {
			return err
		}
	}
}

// forwardLoop delivers matching bus envelopes to the client. A lagging
// subscriber is disconnected: it is shedding load onto the bus, and closing
// it is cheaper than letting it silently miss content.
func (s *session) forwardLoop(ctx context.Context) error {
	for {
		env, err := s.sub.Receive(ctx)
		if err != nil {
			var lag *core.LagError
			switch {
			case errors.As(err, &lag):
				s.log.Warn().
					Uint64("missed", lag.Missed).
					Str("remote", s.remote).
					Str("conn_id", s.id).
					Msg("subscriber lagged, disconnecting")
				return err
			case errors.Is(err, core.ErrBusClosed):
				return nil
			default:
				return err
			}
		}

		if !s.filter.Matches(env) {
			continue
		}

		if err := s.writeJSON(ctx, proto.MessageUpdate(env)); err != nil {
			s.log.Warn().Err(err).Str("conn_id", s.id).Msg("write update failed")
			return err
		}
	}
}
