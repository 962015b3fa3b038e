package engine

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/atomly/atomly/events"
	"github.com/atomly/atomly/models"
	storage "github.com/atomly/atomly/storage/persistent"
)

// maxVoteRetries bounds the optimistic-concurrency loop. A conflict means
// another request from the same user landed between our read and our commit;
// one re-read is normally enough.
const maxVoteRetries = 3

// Vote actions reported in results and events.
const (
	VoteActionAdded   = "added"
	VoteActionUpdated = "updated"
	VoteActionRemoved = "removed"
)

// VoteResult reports the outcome of a vote mutation together with the
// atom's post-transition aggregates.
type VoteResult struct {
	Atom     *models.Atom    `json:"atom"`
	Action   string          `json:"action"`
	VoteType models.VoteType `json:"voteType,omitempty"` // empty when removed
}

// VoteOnAtom applies one vote from userID on atomID. Repeating the stored
// vote type toggles it off; the opposite type flips the vote in place. Each
// transition commits atomically, so the counters, netVotes and isCompleted
// always move together.
func (e *Engine) VoteOnAtom(ctx context.Context, atomID, userID primitive.ObjectID, voteType models.VoteType) (*VoteResult, error) {
	if !voteType.Valid() {
		return nil, ErrInvalidVoteType
	}
	if _, err := e.store.FindAtom(ctx, atomID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrAtomNotFound
		}
		return nil, err
	}

	for attempt := 0; attempt < maxVoteRetries; attempt++ {
		existing, err := e.store.FindVote(ctx, atomID, userID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}

		var t models.VoteTransition
		var action string
		var resultType models.VoteType

		switch {
		case existing == nil:
			t = newVoteTransition(atomID, userID, voteType)
			action, resultType = VoteActionAdded, voteType

		case existing.VoteType == voteType:
			t = removeVoteTransition(atomID, userID, existing.VoteType)
			action, resultType = VoteActionRemoved, ""

		default:
			t = flipVoteTransition(atomID, userID, existing.VoteType, voteType)
			action, resultType = VoteActionUpdated, voteType
		}

		atom, err := e.store.CommitVoteTransition(ctx, t)
		if errors.Is(err, storage.ErrConflict) {
			continue // raced with another vote from this user; re-read
		}
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrAtomNotFound
		}
		if err != nil {
			return nil, err
		}

		e.emitVoteUpdated(ctx, atom, userID, action, resultType)
		return &VoteResult{Atom: atom, Action: action, VoteType: resultType}, nil
	}
	return nil, fmt.Errorf("vote on atom %s: transition contention not resolved after %d attempts", atomID.Hex(), maxVoteRetries)
}

// RemoveVote clears the caller's active vote regardless of its direction,
// behaving like the toggle-off transition.
func (e *Engine) RemoveVote(ctx context.Context, atomID, userID primitive.ObjectID) (*VoteResult, error) {
	for attempt := 0; attempt < maxVoteRetries; attempt++ {
		existing, err := e.store.FindVote(ctx, atomID, userID)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrVoteNotFound
		}
		if err != nil {
			return nil, err
		}

		t := removeVoteTransition(atomID, userID, existing.VoteType)
		atom, err := e.store.CommitVoteTransition(ctx, t)
		if errors.Is(err, storage.ErrConflict) {
			continue
		}
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrAtomNotFound
		}
		if err != nil {
			return nil, err
		}

		e.emitVoteUpdated(ctx, atom, userID, VoteActionRemoved, "")
		return &VoteResult{Atom: atom, Action: VoteActionRemoved}, nil
	}
	return nil, fmt.Errorf("remove vote on atom %s: transition contention not resolved after %d attempts", atomID.Hex(), maxVoteRetries)
}

// newVoteTransition is NoVote → Upvoted/Downvoted.
func newVoteTransition(atomID, userID primitive.ObjectID, voteType models.VoteType) models.VoteTransition {
	t := models.VoteTransition{
		AtomID:  atomID,
		UserID:  userID,
		Op:      models.VoteOpInsert,
		NewType: voteType,
	}
	if voteType == models.VoteUp {
		t.UpDelta, t.NetDelta = 1, 1
	} else {
		t.DownDelta, t.NetDelta = 1, -1
	}
	return t
}

// removeVoteTransition is Upvoted/Downvoted → NoVote.
func removeVoteTransition(atomID, userID primitive.ObjectID, current models.VoteType) models.VoteTransition {
	t := models.VoteTransition{
		AtomID:   atomID,
		UserID:   userID,
		Op:       models.VoteOpDelete,
		Expected: current,
	}
	if current == models.VoteUp {
		t.UpDelta, t.NetDelta = -1, -1
	} else {
		t.DownDelta, t.NetDelta = -1, 1
	}
	return t
}

// flipVoteTransition switches an active vote to the opposite direction,
// moving netVotes by exactly two.
func flipVoteTransition(atomID, userID primitive.ObjectID, current, next models.VoteType) models.VoteTransition {
	t := models.VoteTransition{
		AtomID:   atomID,
		UserID:   userID,
		Op:       models.VoteOpUpdate,
		Expected: current,
		NewType:  next,
	}
	if next == models.VoteUp {
		t.UpDelta, t.DownDelta, t.NetDelta = 1, -1, 2
	} else {
		t.UpDelta, t.DownDelta, t.NetDelta = -1, 1, -2
	}
	return t
}

func (e *Engine) emitVoteUpdated(ctx context.Context, atom *models.Atom, voterID primitive.ObjectID, action string, voteType models.VoteType) {
	e.emit(ctx, events.TypeVoteUpdated, events.VoteUpdatedPayload{
		AtomID:      atom.ID.Hex(),
		VoterID:     voterID.Hex(),
		Action:      action,
		VoteType:    string(voteType),
		Upvotes:     atom.Upvotes,
		Downvotes:   atom.Downvotes,
		NetVotes:    atom.NetVotes,
		IsCompleted: atom.IsCompleted,
	})
	e.emit(ctx, events.TypeLeaderboardChanged, events.LeaderboardChangedPayload{
		Reason: "vote_changed",
		UserID: voterID.Hex(),
	})
}
