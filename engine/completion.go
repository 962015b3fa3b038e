package engine

import (
	"context"
	"errors"
	"log"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/atomly/atomly/caption"
	"github.com/atomly/atomly/events"
	"github.com/atomly/atomly/models"
	"github.com/atomly/atomly/occurrence"
	storage "github.com/atomly/atomly/storage/persistent"
)

// CompleteRequest is the caller's input to CompleteHabit.
type CompleteRequest struct {
	Image         string
	Notes         string
	PublishAsAtom bool
}

// CompletionResult is returned on a successful completion. Atom is non-nil
// only when the completion was published.
type CompletionResult struct {
	Completion   *models.Completion `json:"completion"`
	Atom         *models.Atom       `json:"atom,omitempty"`
	HabitType    models.HabitType   `json:"habitType"`
	WasPublished bool               `json:"wasPublished"`
}

// CompleteHabit records one habit completion. The checks run in a fixed
// order so callers get distinguishable error codes: habit lookup first, then
// the shareable/personal preconditions, then window eligibility, and only
// then the write. The window check and the insert are one atomic storage
// operation. The atom and the karma increment come after the completion and
// are not allowed to undo it: an atom failure leaves an unpublished
// completion, a karma failure is logged and swallowed.
func (e *Engine) CompleteHabit(ctx context.Context, habitID, userID primitive.ObjectID, req CompleteRequest) (*CompletionResult, error) {
	habit, err := e.store.FindHabit(ctx, habitID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrHabitNotFound
	}
	if err != nil {
		return nil, err
	}
	if habit.UserID != userID || !habit.IsActive {
		return nil, ErrHabitNotFound
	}

	if habit.Type == models.HabitTypeShareable && req.PublishAsAtom && req.Image == "" {
		return nil, ErrImageRequired
	}
	if habit.Type == models.HabitTypePersonal && req.PublishAsAtom {
		return nil, ErrPersonalNotShareable
	}

	now := e.localNow()
	window, applicable := occurrence.Resolve(habit.Occurrence, now)
	if !applicable {
		// Wrong day type for this rule; rejected before any storage read.
		return nil, ErrNotApplicableToday
	}

	completion := &models.Completion{
		HabitID:     habit.ID,
		UserID:      userID,
		CompletedAt: now,
		Image:       req.Image,
		Notes:       req.Notes,
	}
	completion, err = e.store.AddCompletionInWindow(ctx, completion, window.Start, window.End, window.Max)
	if errors.Is(err, storage.ErrWindowFull) {
		return nil, alreadyCompleted(habit.Occurrence, window.Max)
	}
	if err != nil {
		return nil, err
	}

	result := &CompletionResult{
		Completion: completion,
		HabitType:  habit.Type,
	}

	if habit.Type == models.HabitTypeShareable && req.PublishAsAtom && req.Image != "" {
		if atom := e.publishAtom(ctx, habit, completion, req.Notes); atom != nil {
			result.Atom = atom
			result.WasPublished = true
		}
	}

	// Karma bookkeeping must not fail the completion.
	if err := e.store.IncrementUserKarma(ctx, userID, KarmaPerCompletion); err != nil {
		log.Printf("failed to update karma for user %s: %v", userID.Hex(), err)
	}

	e.emit(ctx, events.TypeCompletionRecorded, events.CompletionRecordedPayload{
		CompletionID: completion.ID.Hex(),
		HabitID:      habit.ID.Hex(),
		UserID:       userID.Hex(),
		HabitTitle:   habit.Title,
		WasPublished: result.WasPublished,
	})
	e.emit(ctx, events.TypeLeaderboardChanged, events.LeaderboardChangedPayload{
		Reason: "habit_completed",
		UserID: userID.Hex(),
	})

	return result, nil
}

// publishAtom creates the shareable post for a completion and flips its
// published flag. A failure here is logged and leaves the completion
// unpublished; it never aborts the completion itself.
func (e *Engine) publishAtom(ctx context.Context, habit *models.Habit, completion *models.Completion, notes string) *models.Atom {
	categoryName := ""
	if category, err := e.store.FindCategory(ctx, habit.CategoryID); err == nil {
		categoryName = category.Name
	} else {
		log.Printf("category lookup for habit %s failed: %v", habit.ID.Hex(), err)
	}

	atom := &models.Atom{
		CompletionID:   completion.ID,
		HabitID:        habit.ID,
		UserID:         completion.UserID,
		Image:          completion.Image,
		Caption:        e.generateCaption(ctx, habit, categoryName, notes),
		HabitTitle:     habit.Title,
		HabitType:      habit.Type,
		Occurrence:     habit.Occurrence,
		CompletionTime: completion.CompletedAt,
		CreatedAt:      completion.CompletedAt,
	}

	atom, err := e.store.AddAtom(ctx, atom)
	if err != nil {
		log.Printf("failed to create atom for completion %s: %v", completion.ID.Hex(), err)
		return nil
	}

	if err := e.store.SetCompletionPublished(ctx, completion.ID, true); err != nil {
		log.Printf("failed to mark completion %s published: %v", completion.ID.Hex(), err)
	} else {
		completion.IsPublished = true
	}

	e.emit(ctx, events.TypeAtomCreated, events.AtomCreatedPayload{
		AtomID:     atom.ID.Hex(),
		UserID:     atom.UserID.Hex(),
		HabitTitle: atom.HabitTitle,
		Caption:    atom.Caption,
	})
	return atom
}

// generateCaption asks the external generator for a caption and substitutes
// the deterministic fallback on any failure or empty result.
func (e *Engine) generateCaption(ctx context.Context, habit *models.Habit, categoryName, notes string) string {
	if e.captions == nil {
		return caption.Fallback(habit.Title, categoryName)
	}
	text, err := e.captions.Generate(ctx, caption.Request{
		HabitTitle:   habit.Title,
		CategoryName: categoryName,
		Occurrence:   habit.Occurrence,
		Notes:        notes,
	})
	if err != nil || text == "" {
		if err != nil {
			log.Printf("caption generation failed for habit %s: %v", habit.ID.Hex(), err)
		}
		return caption.Fallback(habit.Title, categoryName)
	}
	return text
}
