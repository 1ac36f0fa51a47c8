// Package coordinator runs the real-time session layer for the arcade game:
// presence, friend invites, lobbies, host-authoritative online matches and
// single-elimination tournaments, all driven over one message protocol per
// connection.
package coordinator

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"pongarena/coordinator/internal/bracket"
	"pongarena/coordinator/internal/config"
	"pongarena/coordinator/internal/logging"
	"pongarena/coordinator/internal/store"
)

// GameState is the client-visible activity state of a user.
type GameState string

const (
	// StateInLobby marks a user as browsing or idling.
	StateInLobby GameState = "inLobby"
	// StateInGame marks a user as locked into a match or tournament.
	StateInGame GameState = "inGame"
)

// Conn is a single live client connection. Send must never block the caller;
// Terminate forcibly closes the transport.
type Conn interface {
	Send(payload any)
	Terminate()
}

// MatchRecorder is the durable sink for verified match outcomes.
type MatchRecorder interface {
	InsertVerifiedMatch(ctx context.Context, rec store.MatchRecord) (int64, error)
}

// FriendGraph answers friendship and block queries.
type FriendGraph interface {
	FriendIDs(ctx context.Context, userID int64) ([]int64, error)
	AreFriends(ctx context.Context, a, b int64) (bool, error)
	BlockedEitherWay(ctx context.Context, a, b int64) (bool, error)
}

type userInfo struct {
	id    int64
	alias string
}

type invite struct {
	id        string
	lobbyID   string
	from      int64
	to        int64
	createdAt time.Time
	expiresAt time.Time
}

type onlineMatch struct {
	id        string
	codes     map[int64]string
	ready     map[int64]bool
	hostOnly  bool
	startedAt time.Time
	beganAt   time.Time
}

func (m *onlineMatch) begun() bool { return m != nil && !m.beganAt.IsZero() }

type lobby struct {
	id          string
	host        int64
	members     []int64
	createdAt   time.Time
	activeMatch *onlineMatch
}

func (l *lobby) hasMember(id int64) bool {
	for _, member := range l.members {
		if member == id {
			return true
		}
	}
	return false
}

func (l *lobby) addMember(id int64) {
	if !l.hasMember(id) {
		l.members = append(l.members, id)
	}
}

func (l *lobby) removeMember(id int64) {
	for i, member := range l.members {
		if member == id {
			l.members = append(l.members[:i], l.members[i+1:]...)
			return
		}
	}
}

func (l *lobby) otherMember(id int64) (int64, bool) {
	for _, member := range l.members {
		if member != id {
			return member, true
		}
	}
	return 0, false
}

type submission struct {
	myScore       int
	opponentScore int
	at            time.Time
}

// pendingResult is either a staged host-authoritative score awaiting the
// opponent's confirmation, or the accumulating dual-submission map. The two
// policies are deliberately distinct; see the score paths in match.go.
type pendingResult struct {
	hostConfirm bool
	player1     int64
	player2     int64
	score1      int
	score2      int
	opponent    int64
	stagedAt    time.Time

	submissions map[int64]submission
}

type activeTournamentMatch struct {
	matchID   string
	player1   int64
	player2   int64
	stage     bracket.Stage
	startedAt time.Time
}

type tournament struct {
	id           string
	participants []int64
	bracket      *bracket.Bracket
	active       *activeTournamentMatch
	finished     bool
}

// Coordinator owns every in-memory session registry. A single mutex guards all
// of them: handlers and timer callbacks lock it for their full critical
// section, gateway calls included, so no handler ever observes a half-applied
// transition. Timer callbacks still re-validate the entity they fired for,
// since the entity may have reached a terminal state before the timer was
// cancelled.
type Coordinator struct {
	mu sync.Mutex

	cfg     *config.Config
	log     *logging.Logger
	matches MatchRecorder
	friends FriendGraph
	now     func() time.Time

	conns     map[int64]map[Conn]struct{}
	users     map[int64]userInfo
	gameState map[int64]GameState

	lobbies       map[string]*lobby
	lobbyByHost   map[int64]string
	lobbyByMember map[int64]string

	invites       map[string]*invite
	pendingByPair map[string]string

	tournaments    map[string]*tournament
	pendingResults map[string]*pendingResult

	timers *timerRegistry
}

// Option configures optional Coordinator behaviour at construction time.
type Option func(*Coordinator)

// WithClock overrides the wall-clock time source; primarily used in tests.
func WithClock(clock func() time.Time) Option {
	return func(c *Coordinator) {
		if clock != nil {
			c.now = clock
		}
	}
}

// New constructs a coordinator with empty registries.
func New(cfg *config.Config, log *logging.Logger, matches MatchRecorder, friends FriendGraph, opts ...Option) *Coordinator {
	c := &Coordinator{
		cfg:            cfg,
		log:            log,
		matches:        matches,
		friends:        friends,
		now:            time.Now,
		conns:          make(map[int64]map[Conn]struct{}),
		users:          make(map[int64]userInfo),
		gameState:      make(map[int64]GameState),
		lobbies:        make(map[string]*lobby),
		lobbyByHost:    make(map[int64]string),
		lobbyByMember:  make(map[int64]string),
		invites:        make(map[string]*invite),
		pendingByPair:  make(map[string]string),
		tournaments:    make(map[string]*tournament),
		pendingResults: make(map[string]*pendingResult),
		timers:         newTimerRegistry(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// NewRateLimiter builds the per-connection inbound limiter from configuration.
func (c *Coordinator) NewRateLimiter() *TokenBucket {
	return NewTokenBucket(c.cfg.RateBurst, c.cfg.RateRefillPerSecond, c.now)
}

// Close disarms every scheduled expiry. Used on shutdown.
func (c *Coordinator) Close() {
	c.timers.Stop()
}

func (c *Coordinator) newID() string { return uuid.NewString() }

func (c *Coordinator) newConfirmationCode() string {
	return strconv.Itoa(100000 + rand.Intn(900000))
}

func (c *Coordinator) nowMillis() int64 { return c.now().UnixMilli() }

func formatID(id int64) string { return strconv.FormatInt(id, 10) }

func pairKey(from, to int64) string {
	return formatID(from) + ":" + formatID(to)
}

func resultKey(lobbyID, matchID string) string {
	return lobbyID + ":" + matchID
}

func (c *Coordinator) aliasOf(userID int64) string {
	if info, ok := c.users[userID]; ok && info.alias != "" {
		return info.alias
	}
	return strconv.FormatInt(userID, 10)
}

func (c *Coordinator) persist(rec store.MatchRecord) (int64, error) {
	return c.matches.InsertVerifiedMatch(context.Background(), rec)
}
