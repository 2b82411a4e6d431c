package app

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"trivia-room-service/internal/domain"
)

// Conn is one live attachment to a room. Transports read pushed snapshots
// from Updates and must stop reading only after Detach has closed it.
type Conn struct {
	role     domain.Role
	playerID string
	out      chan domain.Snapshot
}

func (c *Conn) Role() domain.Role { return c.role }

// PlayerID is empty for host connections.
func (c *Conn) PlayerID() string { return c.playerID }

// Updates delivers per-recipient snapshots. Closed on detach.
func (c *Conn) Updates() <-chan domain.Snapshot { return c.out }

// Room owns one game instance. Every mutation happens under mu, is written
// to the durable store, and only then fanned out to connections. A failed
// durable write rolls the mutation back and nothing is broadcast.
type Room struct {
	store RoomStore
	bank  domain.QuestionBank
	now   func() time.Time
	newID func() string

	mu          sync.Mutex
	state       domain.RoomState
	conns       map[*Conn]struct{}
	scored      bool // winners for the current round already paid out
	roundEndsAt time.Time
}

func newRoom(code string, bank domain.QuestionBank, store RoomStore) *Room {
	return newRoomWithClock(code, bank, store, time.Now)
}

// NewRoomWithClock is test-only for deterministic round-end timestamps.
func NewRoomWithClock(code string, bank domain.QuestionBank, store RoomStore, now func() time.Time) *Room {
	return newRoomWithClock(code, bank, store, now)
}

func newRoomWithClock(code string, bank domain.QuestionBank, store RoomStore, now func() time.Time) *Room {
	r := &Room{
		store: store,
		bank:  bank,
		now:   now,
		newID: uuid.NewString,
		conns: make(map[*Conn]struct{}),
		state: domain.RoomState{
			Code:         code,
			Phase:        domain.PhaseLobby,
			TimerSeconds: 20,
			Question:     firstQuestion(bank),
			Answers:      make(map[string]int),
		},
	}
	return r
}

// restoreRoom rebuilds a room from a durable record, defaulting fields that
// older records may lack.
func restoreRoom(state domain.RoomState, code string, bank domain.QuestionBank, store RoomStore) *Room {
	r := newRoom(code, bank, store)
	if state.Code == "" {
		state.Code = code
	}
	if !domain.ValidPhase(string(state.Phase)) {
		state.Phase = domain.PhaseLobby
	}
	if !domain.ValidTimer(state.TimerSeconds) {
		state.TimerSeconds = 20
	}
	if state.Answers == nil {
		state.Answers = make(map[string]int)
	}
	if total := bank.Len(); total > 0 {
		if state.BankIndex < 0 {
			state.BankIndex = 0
		}
		if state.BankIndex > total-1 {
			state.BankIndex = total - 1
		}
	} else {
		state.BankIndex = 0
	}
	if state.Question.Prompt == "" && len(state.Question.Choices) == 0 {
		if bank.Len() > 0 {
			state.Question = bank.Question(state.BankIndex)
		} else {
			state.Question = domain.FallbackQuestion()
		}
	}
	r.state = state
	// A room restored into REVEAL or later already paid out its round.
	if state.Phase == domain.PhaseReveal || state.Phase == domain.PhaseLeaderboard {
		r.scored = true
	}
	return r
}

func firstQuestion(bank domain.QuestionBank) domain.Question {
	if bank.Len() > 0 {
		return bank.Question(0)
	}
	return domain.FallbackQuestion()
}

// Code returns the immutable room code.
func (r *Room) Code() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Code
}

// State returns a copy of the authoritative room record for inspection.
func (r *Room) State() domain.RoomState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Clone()
}

// Attach registers a connection with its declared role. Players must carry a
// non-empty trimmed name and receive a freshly minted identity. The new
// connection gets an immediate snapshot, then everyone gets the updated roster.
func (r *Room) Attach(ctx context.Context, role domain.Role, name string) (*Conn, error) {
	name = strings.TrimSpace(name)
	if role != domain.RoleHost && role != domain.RolePlayer {
		return nil, domain.ErrInvalidJoin
	}
	if role == domain.RolePlayer && name == "" {
		return nil, domain.ErrInvalidJoin
	}

	c := &Conn{role: role, out: make(chan domain.Snapshot, 8)}

	r.mu.Lock()
	defer r.mu.Unlock()

	if role == domain.RolePlayer {
		prev := r.state.Clone()
		c.playerID = r.newID()
		r.state.Players = append(r.state.Players, domain.Player{
			ID:        c.playerID,
			Name:      name,
			Connected: true,
		})
		if err := r.store.SaveRoom(ctx, r.state); err != nil {
			r.state = prev
			return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
		}
	}

	r.conns[c] = struct{}{}
	r.sendLocked(c)
	r.broadcastLocked()
	return c, nil
}

// Detach unregisters a connection. A player's record stays in the roster,
// only marked disconnected; an answer already recorded this round stands.
func (r *Room) Detach(ctx context.Context, c *Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[c]; !ok {
		return nil
	}
	delete(r.conns, c)
	close(c.out)

	if c.playerID == "" {
		return nil
	}

	prev := r.state.Clone()
	for i := range r.state.Players {
		if r.state.Players[i].ID == c.playerID {
			r.state.Players[i].Connected = false
		}
	}
	if err := r.store.SaveRoom(ctx, r.state); err != nil {
		r.state = prev
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	r.broadcastLocked()
	return nil
}

// SetPhase applies a host-requested phase transition. Unknown phases and
// non-host senders are silent no-ops.
func (r *Room) SetPhase(ctx context.Context, c *Conn, phase string) error {
	if c.role != domain.RoleHost || !domain.ValidPhase(phase) {
		return nil
	}
	next := domain.Phase(phase)

	r.mu.Lock()
	defer r.mu.Unlock()

	return r.commit(ctx, func() {
		prev := r.state.Phase
		r.state.Phase = next

		if next == domain.PhaseAnswersOpen {
			r.resetRoundLocked()
			r.roundEndsAt = r.now().Add(time.Duration(r.state.TimerSeconds) * time.Second)
		}
		if next == domain.PhaseReveal {
			r.scoreRoundLocked()
		}
		if prev == domain.PhaseLeaderboard && next == domain.PhaseQuestionOnly && !r.state.GameOver {
			r.advanceQuestionLocked()
			r.resetRoundLocked()
		}
		if next == domain.PhaseLeaderboard && r.bank.Len() > 0 && r.state.BankIndex >= r.bank.Len()-1 {
			r.state.GameOver = true
		}
	})
}

// SetTimer stores the host-selected countdown length. The room never runs
// the countdown itself; the host drives every phase change.
func (r *Room) SetTimer(ctx context.Context, c *Conn, seconds int) error {
	if c.role != domain.RoleHost || !domain.ValidTimer(seconds) {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.commit(ctx, func() {
		r.state.TimerSeconds = seconds
	})
}

// NextQuestion is the host's manual advance through the bank.
func (r *Room) NextQuestion(ctx context.Context, c *Conn) error {
	if c.role != domain.RoleHost {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.commit(ctx, func() {
		r.advanceQuestionLocked()
		r.resetRoundLocked()
	})
}

// ResetGame returns the room to the lobby with the first question and zeroed
// scores. Player identities, names and connection flags are preserved.
func (r *Room) ResetGame(ctx context.Context, c *Conn) error {
	if c.role != domain.RoleHost {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.commit(ctx, func() {
		r.state.Phase = domain.PhaseLobby
		r.state.BankIndex = 0
		r.state.Question = firstQuestion(r.bank)
		r.state.GameOver = false
		r.resetRoundLocked()
		for i := range r.state.Players {
			r.state.Players[i].Score = 0
		}
	})
}

// SubmitAnswer locks in a player's choice for the current round. Submissions
// outside ANSWERS_OPEN, out-of-range indexes and repeat answers are dropped
// silently; the first answer wins.
func (r *Room) SubmitAnswer(ctx context.Context, c *Conn, idx int) error {
	if c.role != domain.RolePlayer || c.playerID == "" {
		return nil
	}
	if idx < 0 || idx > 3 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state.Phase != domain.PhaseAnswersOpen {
		return nil
	}
	if _, answered := r.state.Answers[c.playerID]; answered {
		return nil
	}
	return r.commit(ctx, func() {
		r.state.Answers[c.playerID] = idx
		r.state.Counts[idx]++
	})
}

// SendState pushes a fresh snapshot to a single connection.
func (r *Room) SendState(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[c]; !ok {
		return
	}
	r.sendLocked(c)
}

// commit runs a mutation, persists the result and broadcasts it. On a failed
// durable write the previous state is restored and nothing is sent.
func (r *Room) commit(ctx context.Context, fn func()) error {
	prev := r.state.Clone()
	prevScored := r.scored
	prevEndsAt := r.roundEndsAt

	fn()

	if err := r.store.SaveRoom(ctx, r.state); err != nil {
		r.state = prev
		r.scored = prevScored
		r.roundEndsAt = prevEndsAt
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	r.broadcastLocked()
	return nil
}

// persist writes the current record without broadcasting. Used once at
// creation so a fresh room is durable before any connection attaches.
func (r *Room) persist(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.store.SaveRoom(ctx, r.state); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	return nil
}

// resetRoundLocked clears tallies, answer locks and the scoring guard. This
// is the only place round state resets.
func (r *Room) resetRoundLocked() {
	r.state.Counts = [4]int{}
	r.state.Answers = make(map[string]int)
	r.scored = false
	r.roundEndsAt = time.Time{}
}

// scoreRoundLocked pays 1000 points per correct answer, at most once per
// round no matter how many REVEAL transitions arrive.
func (r *Room) scoreRoundLocked() {
	if r.scored {
		return
	}
	correct := r.state.Question.CorrectIndex
	for playerID, idx := range r.state.Answers {
		if idx != correct {
			continue
		}
		for i := range r.state.Players {
			if r.state.Players[i].ID == playerID {
				r.state.Players[i].Score += 1000
				break
			}
		}
	}
	r.scored = true
}

// advanceQuestionLocked moves to the next bank entry, clamping at the end of
// the bank rather than wrapping.
func (r *Room) advanceQuestionLocked() {
	total := r.bank.Len()
	if total <= 0 {
		r.state.BankIndex = 0
		r.state.Question = domain.FallbackQuestion()
		r.state.GameOver = true
		return
	}
	if r.state.BankIndex >= total-1 {
		r.state.BankIndex = total - 1
		r.state.Question = r.bank.Question(r.state.BankIndex)
		r.state.GameOver = true
		return
	}
	r.state.BankIndex++
	r.state.Question = r.bank.Question(r.state.BankIndex)
	r.state.GameOver = false
}

func (r *Room) sendLocked(c *Conn) {
	push(c.out, r.snapshotLocked(c))
}

// broadcastLocked fans the current state out to every connection. A slow
// consumer only loses its stale snapshot; it never blocks the others.
func (r *Room) broadcastLocked() {
	for c := range r.conns {
		push(c.out, r.snapshotLocked(c))
	}
}

func push(ch chan domain.Snapshot, snap domain.Snapshot) {
	select {
	case ch <- snap:
	default:
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}

// snapshotLocked projects the authoritative state for one recipient. Always
// recomputed, never cached.
func (r *Room) snapshotLocked(c *Conn) domain.Snapshot {
	connected := make([]domain.PlayerView, 0, len(r.state.Players))
	for _, p := range r.state.Players {
		if p.Connected {
			connected = append(connected, domain.PlayerView{Name: p.Name, Score: p.Score})
		}
	}

	top5 := make([]domain.PlayerView, len(connected))
	copy(top5, connected)
	// Stable sort keeps join order as the tie-breaker.
	sort.SliceStable(top5, func(i, j int) bool {
		return top5[i].Score > top5[j].Score
	})
	if len(top5) > 5 {
		top5 = top5[:5]
	}

	choices := make([]string, len(r.state.Question.Choices))
	copy(choices, r.state.Question.Choices)

	snap := domain.Snapshot{
		Code:           r.state.Code,
		Phase:          r.state.Phase,
		TimerSeconds:   r.state.TimerSeconds,
		Counts:         r.state.Counts,
		PlayersCount:   len(connected),
		Top5:           top5,
		Players:        connected,
		Question:       r.state.Question.Prompt,
		Choices:        choices,
		CorrectIndex:   r.state.Question.CorrectIndex,
		BankIndex:      r.state.BankIndex,
		TotalQuestions: r.bank.Len(),
		GameOver:       r.state.GameOver,
	}

	if r.state.Phase == domain.PhaseAnswersOpen && !r.roundEndsAt.IsZero() {
		snap.RoundEndsAt = r.roundEndsAt.UnixMilli()
	}

	if c.role == domain.RolePlayer && c.playerID != "" {
		me := domain.PlayerView{}
		for _, p := range r.state.Players {
			if p.ID == c.playerID {
				me = domain.PlayerView{Name: p.Name, Score: p.Score}
				break
			}
		}
		snap.Me = &me
	}
	return snap
}
