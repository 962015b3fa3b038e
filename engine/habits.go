package engine

import (
	"context"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/atomly/atomly/models"
	"github.com/atomly/atomly/occurrence"
	storage "github.com/atomly/atomly/storage/persistent"
)

// HabitRequest carries the caller-editable fields of a habit. Zero-value
// optional fields are left unchanged on update.
type HabitRequest struct {
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Type        models.HabitType   `json:"type"`
	CategoryID  primitive.ObjectID `json:"categoryId"`
	Occurrence  string             `json:"occurrence"`
	Slot        models.Slot        `json:"slot"`
}

func (r *HabitRequest) validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return newValidationError("HABIT_TITLE_REQUIRED", "habit title must not be empty")
	}
	if !r.Type.Valid() {
		return newValidationError("INVALID_HABIT_TYPE", "habit type must be Personal or Shareable")
	}
	if !occurrence.Known(r.Occurrence) {
		return newValidationError("INVALID_OCCURRENCE", "unrecognized occurrence: "+r.Occurrence)
	}
	if !r.Slot.Valid() {
		return newValidationError("INVALID_SLOT", "unrecognized slot: "+string(r.Slot))
	}
	return nil
}

// CreateHabit validates the request, checks that the category exists and the
// title is unused by this user, and stores the habit as active.
func (e *Engine) CreateHabit(ctx context.Context, userID primitive.ObjectID, req HabitRequest) (*models.Habit, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if _, err := e.store.FindCategory(ctx, req.CategoryID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrCategoryNotFound
		}
		return nil, err
	}
	if _, err := e.store.FindHabitByTitle(ctx, userID, req.Title); err == nil {
		return nil, ErrHabitTitleExists
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	now := e.localNow()
	habit := &models.Habit{
		UserID:      userID,
		CategoryID:  req.CategoryID,
		Title:       req.Title,
		Description: req.Description,
		Type:        req.Type,
		Occurrence:  req.Occurrence,
		Slot:        req.Slot,
		StartDate:   e.startOfDay(now),
		IsActive:    true,
		CreatedAt:   now,
	}
	return e.store.AddHabit(ctx, habit)
}

// UpdateHabit applies the request to a habit the caller owns. Changing the
// title re-checks uniqueness; changing the occurrence affects only future
// eligibility windows, never recorded completions or published atoms.
func (e *Engine) UpdateHabit(ctx context.Context, userID, habitID primitive.ObjectID, req HabitRequest) (*models.Habit, error) {
	habit, err := e.ownedHabit(ctx, userID, habitID)
	if err != nil {
		return nil, err
	}
	if err := req.validate(); err != nil {
		return nil, err
	}
	if _, err := e.store.FindCategory(ctx, req.CategoryID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrCategoryNotFound
		}
		return nil, err
	}
	if req.Title != habit.Title {
		if _, err := e.store.FindHabitByTitle(ctx, userID, req.Title); err == nil {
			return nil, ErrHabitTitleExists
		} else if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
	}

	habit.Title = req.Title
	habit.Description = req.Description
	habit.Type = req.Type
	habit.CategoryID = req.CategoryID
	habit.Occurrence = req.Occurrence
	habit.Slot = req.Slot
	if err := e.store.UpdateHabit(ctx, habit); err != nil {
		return nil, err
	}
	return habit, nil
}

// DeactivateHabit marks a habit inactive without touching its history.
// Inactive habits reject completions but their completions, atoms and karma
// stay on the books.
func (e *Engine) DeactivateHabit(ctx context.Context, userID, habitID primitive.ObjectID) (*models.Habit, error) {
	habit, err := e.ownedHabit(ctx, userID, habitID)
	if err != nil {
		return nil, err
	}
	if habit.IsActive {
		habit.IsActive = false
		if err := e.store.UpdateHabit(ctx, habit); err != nil {
			return nil, err
		}
	}
	return habit, nil
}

// DeleteHabit removes a habit the caller owns, cascading to its completions,
// atoms and votes. Karma already granted is not revoked.
func (e *Engine) DeleteHabit(ctx context.Context, userID, habitID primitive.ObjectID) error {
	if _, err := e.ownedHabit(ctx, userID, habitID); err != nil {
		return err
	}
	return e.store.DeleteHabit(ctx, habitID)
}

// ListHabits returns the caller's habits, active first as stored.
func (e *Engine) ListHabits(ctx context.Context, userID primitive.ObjectID) ([]models.Habit, error) {
	return e.store.ListHabitsByUser(ctx, userID)
}

// ownedHabit loads a habit and hides it behind ErrHabitNotFound when it does
// not exist or belongs to someone else.
func (e *Engine) ownedHabit(ctx context.Context, userID, habitID primitive.ObjectID) (*models.Habit, error) {
	habit, err := e.store.FindHabit(ctx, habitID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrHabitNotFound
	}
	if err != nil {
		return nil, err
	}
	if habit.UserID != userID {
		return nil, ErrHabitNotFound
	}
	return habit, nil
}
