// Package bracket builds and progresses single-elimination tournament brackets.
// A bracket is an arena of matches whose inputs are tagged slots: either a
// concrete participant or the winner/loser of an earlier match in the arena.
package bracket

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrUnsupportedSize signals a participant count no topology exists for.
	ErrUnsupportedSize = errors.New("unsupported participant count")
	// ErrAlreadyCompleted indicates a second completion attempt on the same match.
	ErrAlreadyCompleted = errors.New("match already completed")
	// ErrMatchOutOfRange indicates an arena index outside the bracket.
	ErrMatchOutOfRange = errors.New("match index out of range")
)

// Stage labels a bracket round.
type Stage string

const (
	StageRound1       Stage = "ROUND1"
	StageRound        Stage = "ROUND"
	StageQuarterfinal Stage = "QUARTERFINAL"
	StageSemifinal    Stage = "SEMIFINAL"
	StageThirdPlace   Stage = "THIRD_PLACE"
	StageFinal        Stage = "FINAL"
)

// SlotKind discriminates the three slot reference variants.
type SlotKind int

const (
	// SlotUser references a concrete participant.
	SlotUser SlotKind = iota
	// SlotWinner references the winner of an earlier match.
	SlotWinner
	// SlotLoser references the loser of an earlier match.
	SlotLoser
)

// Slot is one input of a bracket match. User is set for SlotUser; Match holds
// the arena index of the referenced match otherwise.
type Slot struct {
	Kind  SlotKind
	User  int64
	Match int
}

// Match is a single bracket node. Player ids are zero until their slot
// resolves; Winner and Loser are zero until completion (and stay zero for a
// drawn result, which stalls any dependent slot).
type Match struct {
	ID        string
	Stage     Stage
	Slot1     Slot
	Slot2     Slot
	Player1   int64
	Player2   int64
	Score1    int
	Score2    int
	Winner    int64
	Loser     int64
	Completed bool
}

// Bracket is an immutable-topology match arena. Matches only ever reference
// structurally earlier inputs, so re-resolving the arena in index order is
// sufficient to propagate results.
type Bracket struct {
	Matches []Match
	// Final is the arena index of the FINAL match.
	Final int
	// Third is the arena index of the THIRD_PLACE match, or -1 when absent.
	Third int
}

// Placement is a final tournament ranking entry.
type Placement struct {
	UserID int64 `json:"userId"`
	Place  int   `json:"place"`
}

// Build materializes the bracket for the given participants. Supported sizes
// are powers of two of at least four, plus a dedicated six-player topology
// with two quarterfinal play-ins feeding seeded semifinals.
func Build(participants []int64) (*Bracket, error) {
	n := len(participants)
	if n == 6 {
		return buildSixPlayer(participants), nil
	}
	if n < 4 || n&(n-1) != 0 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedSize, n)
	}
	return buildPowerOfTwo(participants), nil
}

func buildSixPlayer(ids []int64) *Bracket {
	b := &Bracket{}
	//1.- Seeds 1-4 (0-indexed 1..4) play two quarterfinal play-ins.
	qf1 := b.add(StageQuarterfinal, userSlot(ids[1]), userSlot(ids[2]))
	qf2 := b.add(StageQuarterfinal, userSlot(ids[3]), userSlot(ids[4]))
	//2.- The top and bottom seeds enter directly at the semifinals.
	semi1 := b.add(StageSemifinal, userSlot(ids[0]), winnerSlot(qf1))
	semi2 := b.add(StageSemifinal, winnerSlot(qf2), userSlot(ids[5]))
	//3.- Bronze and gold are decided from the semifinal losers and winners.
	b.Third = b.add(StageThirdPlace, loserSlot(semi1), loserSlot(semi2))
	b.Final = b.add(StageFinal, winnerSlot(semi1), winnerSlot(semi2))
	return b
}

func buildPowerOfTwo(ids []int64) *Bracket {
	b := &Bracket{Third: -1}

	//1.- Pair adjacent participants into the opening round.
	current := make([]int, 0, len(ids)/2)
	for i := 0; i < len(ids); i += 2 {
		current = append(current, b.add(StageRound1, userSlot(ids[i]), userSlot(ids[i+1])))
	}
	rounds := [][]int{current}

	//2.- Stack winner-vs-winner rounds until a single match remains.
	for len(current) > 1 {
		next := make([]int, 0, len(current)/2)
		for i := 0; i < len(current); i += 2 {
			next = append(next, b.add(StageRound, winnerSlot(current[i]), winnerSlot(current[i+1])))
		}
		rounds = append(rounds, next)
		current = next
	}
	b.Final = current[0]

	//3.- Relabel the penultimate round, the final, and then the opening round;
	// the order matters: for four players the opening round is also the
	// penultimate one and keeps its ROUND1 label.
	semifinals := rounds[len(rounds)-2]
	for _, idx := range semifinals {
		b.Matches[idx].Stage = StageSemifinal
	}
	b.Matches[b.Final].Stage = StageFinal
	for _, idx := range rounds[0] {
		b.Matches[idx].Stage = StageRound1
	}

	//4.- A third-place match exists whenever exactly two matches feed the final.
	if len(semifinals) == 2 {
		b.Third = b.add(StageThirdPlace, loserSlot(semifinals[0]), loserSlot(semifinals[1]))
	}
	return b
}

func (b *Bracket) add(stage Stage, slot1, slot2 Slot) int {
	b.Matches = append(b.Matches, Match{
		ID:    uuid.NewString(),
		Stage: stage,
		Slot1: slot1,
		Slot2: slot2,
	})
	return len(b.Matches) - 1
}

func userSlot(id int64) Slot  { return Slot{Kind: SlotUser, User: id} }
func winnerSlot(idx int) Slot { return Slot{Kind: SlotWinner, Match: idx} }
func loserSlot(idx int) Slot  { return Slot{Kind: SlotLoser, Match: idx} }

// Resolve walks the arena and fills in player ids for every slot whose
// referenced match has completed. Already-resolved players are never
// overwritten.
func (b *Bracket) Resolve() {
	for i := range b.Matches {
		m := &b.Matches[i]
		if m.Player1 == 0 {
			m.Player1 = b.resolveSlot(m.Slot1)
		}
		if m.Player2 == 0 {
			m.Player2 = b.resolveSlot(m.Slot2)
		}
	}
}

func (b *Bracket) resolveSlot(slot Slot) int64 {
	if slot.Kind == SlotUser {
		return slot.User
	}
	if slot.Match < 0 || slot.Match >= len(b.Matches) {
		return 0
	}
	ref := b.Matches[slot.Match]
	if !ref.Completed {
		return 0
	}
	if slot.Kind == SlotWinner {
		return ref.Winner
	}
	return ref.Loser
}

// NextReady re-resolves the arena and returns the index of the first, in
// creation order, incomplete match with both players resolved, or -1.
func (b *Bracket) NextReady() int {
	b.Resolve()
	for i := range b.Matches {
		m := &b.Matches[i]
		if m.Completed {
			continue
		}
		if m.Player1 > 0 && m.Player2 > 0 {
			return i
		}
	}
	return -1
}

// Complete records the outcome of the match at idx. A match completes at most
// once; winner and loser are immutable afterwards.
func (b *Bracket) Complete(idx int, player1, player2 int64, score1, score2 int) error {
	if idx < 0 || idx >= len(b.Matches) {
		return fmt.Errorf("%w: %d", ErrMatchOutOfRange, idx)
	}
	m := &b.Matches[idx]
	if m.Completed {
		return ErrAlreadyCompleted
	}
	m.Player1 = player1
	m.Player2 = player2
	m.Score1 = score1
	m.Score2 = score2
	switch {
	case score1 > score2:
		m.Winner, m.Loser = player1, player2
	case score2 > score1:
		m.Winner, m.Loser = player2, player1
	}
	m.Completed = true
	return nil
}

// IndexByID returns the arena index of the match with the given id.
func (b *Bracket) IndexByID(id string) (int, bool) {
	for i := range b.Matches {
		if b.Matches[i].ID == id {
			return i, true
		}
	}
	return -1, false
}

// Finished reports whether the final (and the third-place match, when present)
// has completed with a decisive winner.
func (b *Bracket) Finished() bool {
	final := b.Matches[b.Final]
	if !final.Completed || final.Winner == 0 {
		return false
	}
	if b.Third < 0 {
		return true
	}
	third := b.Matches[b.Third]
	return third.Completed && third.Winner != 0
}

// Placements returns the podium once the bracket has finished.
func (b *Bracket) Placements() []Placement {
	placements := make([]Placement, 0, 3)
	final := b.Matches[b.Final]
	if final.Winner != 0 {
		placements = append(placements, Placement{UserID: final.Winner, Place: 1})
	}
	if final.Loser != 0 {
		placements = append(placements, Placement{UserID: final.Loser, Place: 2})
	}
	if b.Third >= 0 {
		if third := b.Matches[b.Third]; third.Winner != 0 {
			placements = append(placements, Placement{UserID: third.Winner, Place: 3})
		}
	}
	return placements
}
