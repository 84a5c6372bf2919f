/*
Package client is the Go client for the QuickChat relay.

Session holds the state a chat UI renders (online users, unread counters, the active conversation
and its messages) and reconciles it against relay events, history fetches and the user's local
mute and block preferences. WSTransport carries the relay connection; APIClient the HTTP calls.
*/
package client

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"quickchat/internal/pkg/logx"
	"quickchat/internal/protocol"
)

var (
	// ErrNoActivePeer is returned by Send when no conversation is open.
	ErrNoActivePeer = errors.New("no conversation selected")

	// ErrPeerBlocked is returned by Send when the active peer is blocked. The server is not contacted.
	ErrPeerBlocked = errors.New("you have blocked this user; unblock them to send messages")

	// ErrEmptyMessage is returned by Send when both text and image are empty.
	ErrEmptyMessage = errors.New("message is empty")
)

// connectivityError is what the UI shows while the relay is unreachable.
const connectivityError = "Unable to reach the chat server. Reconnecting..."

// HistoryFetcher loads the full conversation between two users, oldest first.
type HistoryFetcher interface {
	FetchHistory(ctx context.Context, self, peer string) ([]protocol.Message, error)
}

// Change tells a subscriber which part of the state moved.
type Change int

const (
	ChangePresence Change = iota
	ChangeMessages
	ChangeUnread
	ChangeError
	ChangeConnection
	ChangePreferences
)

// State is a point-in-time copy of the session.
type State struct {
	Self            string
	ActivePeer      string
	Messages        []protocol.Message
	Online          []string
	Unread          map[string]int
	Muted           []string
	Blocked         []string
	Error           string
	ConnectionError string
}

// Session reconciles relay events into renderable state. Safe for concurrent use: the
// transport goroutine delivers events while the UI selects peers and sends.
type Session struct {
	self    string
	sender  Sender
	history HistoryFetcher
	prefs   PrefStore
	now     func() time.Time

	mu         sync.Mutex
	online     map[string]struct{}
	unread     map[string]int
	muted      map[string]struct{}
	blocked    map[string]struct{}
	lastOpened map[string]time.Time
	activePeer string
	messages   []protocol.Message
	errBanner  string
	connErr    string

	// fetchGen increments on every peer switch; a history result tagged with an older
	// generation is discarded.
	fetchGen uint64

	// hydrating holds, per peer whose history is being counted, the ids of live messages
	// counted while the fetch was in flight.
	hydrating map[string]map[string]struct{}

	saveMu sync.Mutex

	onChange func(Change)
	logger   zerolog.Logger
}

// Option configures a Session.
type Option func(*Session)

// WithChangeHandler registers fn to be called, outside the session lock, after every state change.
func WithChangeHandler(fn func(Change)) Option {
	return func(s *Session) { s.onChange = fn }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// NewSession creates the session for self, loading preferences from prefs.
func NewSession(self string, sender Sender, history HistoryFetcher, prefs PrefStore, opts ...Option) *Session {
	s := &Session{
		self:       self,
		sender:     sender,
		history:    history,
		prefs:      prefs,
		now:        time.Now,
		online:     make(map[string]struct{}),
		unread:     make(map[string]int),
		muted:      make(map[string]struct{}),
		blocked:    make(map[string]struct{}),
		lastOpened: make(map[string]time.Time),
		hydrating:  make(map[string]map[string]struct{}),
		logger:     logx.Component("Session").With().Str("user_id", self).Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	p, err := prefs.Load()
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to load preferences, using defaults")
	}
	for _, id := range p.Muted {
		s.muted[id] = struct{}{}
	}
	for _, id := range p.Blocked {
		s.blocked[id] = struct{}{}
	}
	maps.Copy(s.lastOpened, p.LastOpened)

	return s
}

func (s *Session) notify(changes ...Change) {
	if s.onChange == nil {
		return
	}
	for _, c := range changes {
		s.onChange(c)
	}
}

// HandleConnected clears the connectivity error once the transport is registered again.
func (s *Session) HandleConnected() {
	s.mu.Lock()
	s.connErr = ""
	s.mu.Unlock()

	s.notify(ChangeConnection)
}

// HandleConnectError puts the session into the generic connectivity error state.
func (s *Session) HandleConnectError(err error) {
	s.logger.Debug().Err(err).Msg("Transport error")

	s.mu.Lock()
	s.connErr = connectivityError
	s.mu.Unlock()

	s.notify(ChangeConnection)
}

// HandleEvent applies one relay event.
func (s *Session) HandleEvent(env protocol.Envelope) {
	switch env.Type {
	case protocol.EventPresenceUpdate:
		var p protocol.PresencePayload
		if err := env.DecodePayload(&p); err != nil {
			s.logger.Warn().Err(err).Msg("Bad presence payload")
			return
		}
		s.applyPresence(p)

	case protocol.EventMessageNew:
		var p protocol.NewMessagePayload
		if err := env.DecodePayload(&p); err != nil {
			s.logger.Warn().Err(err).Msg("Bad message payload")
			return
		}
		s.applyMessage(p)

	case protocol.EventMessageError:
		var p protocol.ErrorPayload
		if err := env.DecodePayload(&p); err != nil {
			s.logger.Warn().Err(err).Msg("Bad error payload")
			return
		}
		s.applyError(p)
	}
}

func (s *Session) applyPresence(p protocol.PresencePayload) {
	online := make(map[string]struct{}, len(p.OnlineUserIDs))
	for _, id := range p.OnlineUserIDs {
		online[id] = struct{}{}
	}

	s.mu.Lock()
	s.online = online
	s.mu.Unlock()

	s.notify(ChangePresence)
}

// applyMessage routes a message to exactly one outcome: discarded (blocked sender), appended
// (active conversation), counted (incoming from an unmuted peer) or dropped.
func (s *Session) applyMessage(m protocol.NewMessagePayload) {
	s.mu.Lock()

	if _, blocked := s.blocked[m.SenderID]; blocked {
		s.mu.Unlock()
		return
	}

	if s.activePeer != "" && (m.SenderID == s.activePeer || m.ReceiverID == s.activePeer) {
		s.messages = append(s.messages, m.Message)
		s.errBanner = ""
		s.mu.Unlock()
		s.notify(ChangeMessages)
		return
	}

	if _, muted := s.muted[m.SenderID]; m.SenderID != s.self && !muted {
		s.unread[m.SenderID]++
		if live, ok := s.hydrating[m.SenderID]; ok {
			live[m.ID] = struct{}{}
		}
		s.mu.Unlock()
		s.notify(ChangeUnread)
		return
	}

	s.mu.Unlock()
}

func (s *Session) applyError(p protocol.ErrorPayload) {
	s.mu.Lock()
	if s.activePeer == "" {
		s.mu.Unlock()
		return
	}
	s.errBanner = p.Error
	s.mu.Unlock()

	s.notify(ChangeError)
}

// SelectPeer makes peer the active conversation: it records the open time, clears the unread
// counter and replaces the messages with the fetched history. A fetch that completes after
// another switch is discarded. An empty peer closes the conversation.
func (s *Session) SelectPeer(ctx context.Context, peer string) error {
	s.mu.Lock()
	s.fetchGen++
	gen := s.fetchGen
	s.activePeer = peer
	s.messages = nil
	s.errBanner = ""
	if peer == "" {
		s.mu.Unlock()
		s.notify(ChangeMessages)
		return nil
	}
	s.lastOpened[peer] = s.now()
	delete(s.unread, peer)
	s.unlockAndSave()

	s.notify(ChangeUnread, ChangeMessages)

	history, err := s.history.FetchHistory(ctx, s.self, peer)

	s.mu.Lock()
	if gen != s.fetchGen || s.activePeer != peer {
		s.mu.Unlock()
		s.logger.Debug().Str("peer", peer).Msg("Discarding stale history")
		return nil
	}
	if err != nil {
		s.errBanner = "Failed to load messages."
		s.mu.Unlock()
		s.notify(ChangeError)
		return fmt.Errorf("fetch history with %s: %w", peer, err)
	}
	s.messages = history
	s.mu.Unlock()

	s.notify(ChangeMessages)
	return nil
}

// HydrateUnread recomputes unread counters from history for every peer that is not active,
// muted or blocked. Peers whose count is zero are removed from the mapping. Live messages that
// arrive during a peer's fetch are added to its count unless the fetched history already holds them.
func (s *Session) HydrateUnread(ctx context.Context, peers []string) error {
	var errs []error

	for _, peer := range peers {
		s.mu.Lock()
		if s.skipHydrationLocked(peer) {
			s.mu.Unlock()
			continue
		}
		since := s.lastOpened[peer]
		live := make(map[string]struct{})
		s.hydrating[peer] = live
		s.mu.Unlock()

		history, err := s.history.FetchHistory(ctx, s.self, peer)

		s.mu.Lock()
		delete(s.hydrating, peer)
		if err != nil {
			s.mu.Unlock()
			errs = append(errs, fmt.Errorf("fetch history with %s: %w", peer, err))
			continue
		}

		count := countUnread(history, peer, since)
		for _, m := range history {
			delete(live, m.ID)
		}
		count += len(live)

		// The user may have opened, muted or blocked the peer while the fetch ran.
		if !s.skipHydrationLocked(peer) {
			if count > 0 {
				s.unread[peer] = count
			} else {
				delete(s.unread, peer)
			}
		}
		s.mu.Unlock()
	}

	s.notify(ChangeUnread)
	return errors.Join(errs...)
}

func (s *Session) skipHydrationLocked(peer string) bool {
	_, muted := s.muted[peer]
	_, blocked := s.blocked[peer]
	return peer == "" || peer == s.self || peer == s.activePeer || muted || blocked
}

// countUnread counts messages from peer created strictly after since.
func countUnread(history []protocol.Message, peer string, since time.Time) int {
	n := 0
	for _, m := range history {
		if m.SenderID == peer && m.CreatedAt.After(since) {
			n++
		}
	}
	return n
}

// Send asks the relay to deliver a message to the active peer. The message appears in the
// conversation only when the relay echoes it back.
func (s *Session) Send(text, imageURL string) error {
	s.mu.Lock()
	peer := s.activePeer
	if peer == "" {
		s.mu.Unlock()
		return ErrNoActivePeer
	}
	if _, blocked := s.blocked[peer]; blocked {
		s.errBanner = ErrPeerBlocked.Error()
		s.mu.Unlock()
		s.notify(ChangeError)
		return ErrPeerBlocked
	}
	s.mu.Unlock()

	if text == "" && imageURL == "" {
		return ErrEmptyMessage
	}

	return s.sender.Send(protocol.EventMessageSend, protocol.SendPayload{
		FromUserID: s.self,
		ToUserID:   peer,
		Text:       text,
		ImageURL:   imageURL,
	})
}

// Mute stops unread counting for peer. Messages are still delivered and shown when the conversation is open.
func (s *Session) Mute(peer string) { s.updateSet(s.muted, peer, true, false) }

// Unmute resumes unread counting for peer.
func (s *Session) Unmute(peer string) { s.updateSet(s.muted, peer, false, false) }

// Block hides all further messages from peer and clears its unread counter.
func (s *Session) Block(peer string) { s.updateSet(s.blocked, peer, true, true) }

// Unblock shows messages from peer again. Messages received while blocked are not recovered.
func (s *Session) Unblock(peer string) { s.updateSet(s.blocked, peer, false, false) }

func (s *Session) updateSet(set map[string]struct{}, peer string, add, clearUnread bool) {
	s.mu.Lock()
	if add {
		set[peer] = struct{}{}
	} else {
		delete(set, peer)
	}
	if clearUnread {
		delete(s.unread, peer)
	}
	s.unlockAndSave()

	s.notify(ChangePreferences, ChangeUnread)
}

// ClearError dismisses the error banner.
func (s *Session) ClearError() {
	s.mu.Lock()
	s.errBanner = ""
	s.mu.Unlock()

	s.notify(ChangeError)
}

// IsOnline reports whether peer has at least one open connection.
func (s *Session) IsOnline(peer string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.online[peer]
	return ok
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return State{
		Self:            s.self,
		ActivePeer:      s.activePeer,
		Messages:        slices.Clone(s.messages),
		Online:          slices.Sorted(maps.Keys(s.online)),
		Unread:          maps.Clone(s.unread),
		Muted:           slices.Sorted(maps.Keys(s.muted)),
		Blocked:         slices.Sorted(maps.Keys(s.blocked)),
		Error:           s.errBanner,
		ConnectionError: s.connErr,
	}
}

func (s *Session) preferencesLocked() Preferences {
	return Preferences{
		Muted:      slices.Collect(maps.Keys(s.muted)),
		Blocked:    slices.Collect(maps.Keys(s.blocked)),
		LastOpened: maps.Clone(s.lastOpened),
	}
}

// unlockAndSave releases mu and persists the preferences captured while it was held. saveMu is
// taken before mu is released, so saves land in the order the changes were made.
func (s *Session) unlockAndSave() {
	p := s.preferencesLocked()
	s.saveMu.Lock()
	s.mu.Unlock()
	defer s.saveMu.Unlock()

	if err := s.prefs.Save(p); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to save preferences")
	}
}
