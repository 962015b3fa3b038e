package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/atomly/atomly/models"
)

var (
	// ErrNotFound is returned when a lookup matches no record.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a conditional write finds the stored
	// state no longer matches its precondition (or a unique index rejects
	// an insert). Callers may re-read and retry.
	ErrConflict = errors.New("conditional write conflict")
	// ErrWindowFull is returned by AddCompletionInWindow when the window
	// already holds its maximum number of completions.
	ErrWindowFull = errors.New("completion window full")
)

// StorageInterface defines the set of methods that any persistent storage
// backend needs to implement. Compound mutations (windowed completion
// inserts, vote transitions) are single operations here so that backends can
// make them atomic; callers never do their own check-then-write sequences.
type StorageInterface interface {
	Connect(dbName, uri string) error
	Disconnect() error

	// Users. TotalKarma mutates only through IncrementUserKarma.
	AddUser(ctx context.Context, user *models.User) (*models.User, error)
	FindUser(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	ListUsersByKarma(ctx context.Context, limit int64) ([]models.User, error)
	CountUsersWithKarmaAbove(ctx context.Context, karma int) (int64, error)
	IncrementUserKarma(ctx context.Context, id primitive.ObjectID, delta int) error

	// Categories.
	AddCategory(ctx context.Context, category *models.Category) (*models.Category, error)
	FindCategory(ctx context.Context, id primitive.ObjectID) (*models.Category, error)

	// Habits. DeleteHabit cascades to completions, atoms and votes.
	AddHabit(ctx context.Context, habit *models.Habit) (*models.Habit, error)
	FindHabit(ctx context.Context, id primitive.ObjectID) (*models.Habit, error)
	FindHabitByTitle(ctx context.Context, userID primitive.ObjectID, title string) (*models.Habit, error)
	ListHabitsByUser(ctx context.Context, userID primitive.ObjectID) ([]models.Habit, error)
	ListHabitsByCategory(ctx context.Context, categoryID primitive.ObjectID) ([]models.Habit, error)
	UpdateHabit(ctx context.Context, habit *models.Habit) error
	DeleteHabit(ctx context.Context, id primitive.ObjectID) error

	// Completions. AddCompletionInWindow atomically counts the habit's
	// completions inside [start, end) and inserts only when the count is
	// below max, returning ErrWindowFull otherwise.
	AddCompletionInWindow(ctx context.Context, completion *models.Completion, start, end time.Time, max int) (*models.Completion, error)
	CountCompletionsBetween(ctx context.Context, userID primitive.ObjectID, start, end time.Time) (int64, error)
	ListCompletionsBetween(ctx context.Context, userID primitive.ObjectID, start, end time.Time) ([]models.Completion, error)
	ListCompletionsForHabits(ctx context.Context, habitIDs []primitive.ObjectID) ([]models.Completion, error)
	SetCompletionPublished(ctx context.Context, id primitive.ObjectID, published bool) error

	// Atoms. Vote counters and IsCompleted mutate only through
	// CommitVoteTransition.
	AddAtom(ctx context.Context, atom *models.Atom) (*models.Atom, error)
	FindAtom(ctx context.Context, id primitive.ObjectID) (*models.Atom, error)
	ListTrendingAtoms(ctx context.Context, since time.Time, limit int64) ([]models.Atom, error)

	// Votes. CommitVoteTransition applies the vote write and the counter
	// deltas as one atomic unit and returns the updated atom; it fails with
	// ErrConflict when the stored vote no longer matches t.Expected.
	FindVote(ctx context.Context, atomID, userID primitive.ObjectID) (*models.Vote, error)
	CommitVoteTransition(ctx context.Context, t models.VoteTransition) (*models.Atom, error)
	CountVotesCastBetween(ctx context.Context, userID primitive.ObjectID, start, end time.Time) (int64, error)
}

// NewStorage creates a new StorageInterface with a MongoDB backend,
// using the provided URI to connect to the MongoDB server.
func NewStorage(dbName, uri string) (StorageInterface, error) {
	storage := NewMongoStorage()
	err := storage.Connect(dbName, uri)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return storage, nil
}
