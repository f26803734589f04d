package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"strings"

	"github.com/google/uuid"

	"github.com/resignhq/resign/internal/logger"
	"github.com/resignhq/resign/internal/protocol"
	"github.com/resignhq/resign/internal/protocol/wire"
	"github.com/resignhq/resign/pkg/identity"
)

// Session holds per-connection authentication state and the framed channel.
//
// A session starts anonymous, becomes authenticated on a successful login,
// returns to anonymous on logout, and terminates on disconnect, protocol
// error, or the explicit Exit action. Each session is driven by exactly one
// goroutine; nothing here needs locking.
type Session struct {
	// ID correlates all log lines of one connection.
	ID uuid.UUID

	channel *wire.Channel
	log     *slog.Logger

	// username is empty while the session is anonymous. When set, it is
	// a canonical-lowercase reference into the directory store.
	username string
}

// NewSession creates an anonymous session over the given channel.
func NewSession(channel *wire.Channel) *Session {
	id := uuid.New()
	return &Session{
		ID:      id,
		channel: channel,
		log:     logger.With("session_id", id.String(), "address", channel.RemoteAddr()),
	}
}

// Anonymous reports whether the session has no authenticated identity.
func (s *Session) Anonymous() bool {
	return s.username == ""
}

// Username returns the authenticated username, or "" when anonymous.
func (s *Session) Username() string {
	return s.username
}

// Authenticate transitions the session to the authenticated state.
func (s *Session) Authenticate(username string) {
	s.username = username
}

// ClearIdentity returns the session to the anonymous state.
func (s *Session) ClearIdentity() {
	s.username = ""
}

// Result describes how a session loop ended.
type Result int

const (
	// ResultClientExit: the client selected the Exit action.
	ResultClientExit Result = iota
	// ResultDisconnect: the client closed the connection between turns.
	ResultDisconnect
	// ResultProtocolError: a malformed or unexpected message.
	ResultProtocolError
	// ResultError: an I/O or internal failure.
	ResultError
)

func (r Result) String() string {
	switch r {
	case ResultClientExit:
		return "client_exit"
	case ResultDisconnect:
		return "disconnect"
	case ResultProtocolError:
		return "protocol_error"
	default:
		return "error"
	}
}

// Run drives the session loop until termination: each turn sends the
// banner, receives exactly one selector, and dispatches it. The handler
// sends exactly one reply per dispatched action, preserving the channel's
// half-duplex discipline.
//
// The returned Result distinguishes graceful closes (Exit, client
// disconnect) from real failures so the caller can log them accurately.
func (s *Session) Run(ctx context.Context, dispatcher *Dispatcher) (Result, error) {
	for {
		if err := ctx.Err(); err != nil {
			return ResultError, err
		}

		banner := s.buildBanner(ctx, dispatcher)
		if err := s.channel.SendString(banner); err != nil {
			return ResultError, err
		}

		selector, err := s.channel.ReceiveString()
		if err != nil {
			return classify(err)
		}

		action, err := protocol.ParseAction(selector)
		if err != nil {
			// An unparseable selector is a fatal protocol error; no
			// reply is meaningful.
			s.log.Warn("unparseable action selector", "selector", selector)
			return ResultProtocolError, err
		}

		s.log.Debug("dispatching action", "action", action.Name())
		if err := dispatcher.Dispatch(ctx, s, action); err != nil {
			if errors.Is(err, ErrClientExit) {
				return ResultClientExit, nil
			}
			return classify(err)
		}
	}
}

// classify maps a channel error to the session result it represents.
func classify(err error) (Result, error) {
	switch {
	case errors.Is(err, io.EOF):
		return ResultDisconnect, nil
	case errors.Is(err, wire.ErrProtocol):
		return ResultProtocolError, err
	default:
		return ResultError, err
	}
}

// motivationalQuotes is shown to HR users in the banner. Purely cosmetic.
var motivationalQuotes = []string{
	"Train people well enough so they can leave. Treat them well enough so they don't want to.",
	"Human Resources isn't a thing we do. It's the thing that runs our business.",
	"When people go to work, they shouldn't have to leave their hearts at home.",
	"Hire character. Train skill.",
	"Every problem is a gift - without problems we would not grow.",
	"Far and away the best prize that life offers is the chance to work hard at work worth doing.",
	"Believe you can and you're halfway there.",
}

// bannerGreeting is the first line of every banner.
const bannerGreeting = "Welcome to RESIGN (hR onlinE uSer dIrectory manaGemeNt)!"

// buildBanner assembles the per-turn banner reflecting the current
// authentication state. HR users additionally get a quote line; it has no
// security meaning.
func (s *Session) buildBanner(ctx context.Context, dispatcher *Dispatcher) string {
	var b strings.Builder
	b.WriteString(bannerGreeting)

	if s.Anonymous() {
		return b.String()
	}

	b.WriteString("\nCurrently logged in as ")
	b.WriteString(s.username)

	role, _, derr := dispatcher.role(ctx, s)
	if derr == nil && role == string(identity.RoleHR) {
		b.WriteString("\nQuote of the day: ")
		b.WriteString(pickQuote())
		b.WriteString("\n")
	}

	return b.String()
}

// pickQuote returns a random motivational quote.
func pickQuote() string {
	return motivationalQuotes[rand.IntN(len(motivationalQuotes))]
}
