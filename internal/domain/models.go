package domain

import "context"

// Role identifies what a connection is allowed to do.
type Role string

const (
	RoleHost   Role = "host"
	RolePlayer Role = "player"
)

// Phase is the stage of the host-driven game flow.
type Phase string

const (
	PhaseLobby        Phase = "LOBBY"
	PhaseQuestionOnly Phase = "QUESTION_ONLY"
	PhaseAnswersOpen  Phase = "ANSWERS_OPEN"
	PhaseReveal       Phase = "REVEAL"
	PhaseLeaderboard  Phase = "LEADERBOARD"
)

// ValidPhase reports whether s names one of the five phases.
func ValidPhase(s string) bool {
	switch Phase(s) {
	case PhaseLobby, PhaseQuestionOnly, PhaseAnswersOpen, PhaseReveal, PhaseLeaderboard:
		return true
	}
	return false
}

// TimerChoices are the only countdown lengths the host may pick.
var TimerChoices = []int{10, 20, 30, 45, 60}

// ValidTimer reports membership in TimerChoices.
func ValidTimer(seconds int) bool {
	for _, t := range TimerChoices {
		if t == seconds {
			return true
		}
	}
	return false
}

// Question is the denormalized copy of a bank entry shown during a round.
// Copied at advance time so a bank edit cannot touch an in-progress round.
type Question struct {
	Prompt       string   `json:"prompt"`
	Choices      []string `json:"choices"` // exactly 4
	CorrectIndex int      `json:"correctIndex"`
}

// BankQuestion is one entry of the static question bank.
type BankQuestion struct {
	ID           string   `json:"id"`
	Prompt       string   `json:"prompt"`
	Choices      []string `json:"choices"`
	CorrectIndex int      `json:"correctIndex"`
}

// QuestionBank is the static ordered list of questions for a process lifetime.
type QuestionBank struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Questions []BankQuestion `json:"questions"`
}

// Question returns the denormalized copy of the entry at index i.
func (b QuestionBank) Question(i int) Question {
	q := b.Questions[i]
	choices := make([]string, len(q.Choices))
	copy(choices, q.Choices)
	return Question{Prompt: q.Prompt, Choices: choices, CorrectIndex: q.CorrectIndex}
}

// Len returns the total number of bank entries.
func (b QuestionBank) Len() int { return len(b.Questions) }

// BankLoader fetches question bank content from a backing store.
type BankLoader interface {
	LoadBank(ctx context.Context, bankID string) (QuestionBank, error)
}

// FallbackQuestion is served when the bank has no entries.
func FallbackQuestion() Question {
	return Question{
		Prompt: "No questions are loaded for this room. Which choice is first?",
		Choices: []string{
			"This one",
			"The second one",
			"The third one",
			"The last one",
		},
		CorrectIndex: 0,
	}
}

// Player is a stable identity inside one room. Records are never removed,
// only marked disconnected, so a score survives a dropped phone connection.
type Player struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Score     int    `json:"score"`
	Connected bool   `json:"connected"`
}

// RoomState is the durable record for one room, keyed by code. It holds
// everything needed to rebuild a snapshot after a process restart.
type RoomState struct {
	Code         string         `json:"code"`
	Phase        Phase          `json:"phase"`
	TimerSeconds int            `json:"timerSeconds"`
	BankIndex    int            `json:"bankIndex"`
	Question     Question       `json:"question"`
	Counts       [4]int         `json:"counts"`
	Answers      map[string]int `json:"answers"` // playerID -> locked-in choice, current round only
	Players      []Player       `json:"players"` // join order preserved
	GameOver     bool           `json:"gameOver"`
}

// Clone returns a deep copy safe to mutate independently.
func (s RoomState) Clone() RoomState {
	out := s
	out.Answers = make(map[string]int, len(s.Answers))
	for k, v := range s.Answers {
		out.Answers[k] = v
	}
	out.Players = append([]Player(nil), s.Players...)
	out.Question.Choices = append([]string(nil), s.Question.Choices...)
	return out
}

// PlayerView is the public name+score projection used in rosters and leaderboards.
type PlayerView struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

// Snapshot is the full recomputed view of a room sent to every connection.
// Me is populated only for player recipients.
type Snapshot struct {
	Code           string       `json:"code"`
	Phase          Phase        `json:"phase"`
	TimerSeconds   int          `json:"timerSeconds"`
	RoundEndsAt    int64        `json:"roundEndsAt,omitempty"` // unix millis, display-only
	Counts         [4]int       `json:"counts"`
	PlayersCount   int          `json:"playersCount"`
	Top5           []PlayerView `json:"top5"`
	Players        []PlayerView `json:"players"`
	Question       string       `json:"question"`
	Choices        []string     `json:"choices"`
	CorrectIndex   int          `json:"correctIndex"`
	BankIndex      int          `json:"bankIndex"`
	TotalQuestions int          `json:"totalQuestions"`
	GameOver       bool         `json:"gameOver"`
	Me             *PlayerView  `json:"me,omitempty"`
}
