// Package memory provides an in-memory implementation of the persistent
// storage contract. It backs the engine tests and lets the server run
// without a MongoDB instance; all compound operations take the store mutex,
// which gives them the same atomicity the Mongo backend gets from session
// transactions.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/atomly/atomly/models"
	storage "github.com/atomly/atomly/storage/persistent"
)

type Store struct {
	mu          sync.Mutex
	users       map[primitive.ObjectID]*models.User
	categories  map[primitive.ObjectID]*models.Category
	habits      map[primitive.ObjectID]*models.Habit
	completions map[primitive.ObjectID]*models.Completion
	atoms       map[primitive.ObjectID]*models.Atom
	votes       map[voteKey]*models.Vote
	userOrder   []primitive.ObjectID
}

type voteKey struct {
	atomID primitive.ObjectID
	userID primitive.ObjectID
}

var _ storage.StorageInterface = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		users:       make(map[primitive.ObjectID]*models.User),
		categories:  make(map[primitive.ObjectID]*models.Category),
		habits:      make(map[primitive.ObjectID]*models.Habit),
		completions: make(map[primitive.ObjectID]*models.Completion),
		atoms:       make(map[primitive.ObjectID]*models.Atom),
		votes:       make(map[voteKey]*models.Vote),
	}
}

func (s *Store) Connect(dbName, uri string) error { return nil }
func (s *Store) Disconnect() error                { return nil }

func (s *Store) AddUser(ctx context.Context, user *models.User) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	for _, u := range s.users {
		if u.Username == user.Username {
			return nil, storage.ErrConflict
		}
	}
	clone := *user
	s.users[user.ID] = &clone
	s.userOrder = append(s.userOrder, user.ID)
	return user, nil
}

func (s *Store) FindUser(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	clone := *u
	return &clone, nil
}

// ListUsers returns users in insertion order, which is what gives the daily
// leaderboard its stable tie-breaking.
func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := make([]models.User, 0, len(s.userOrder))
	for _, id := range s.userOrder {
		users = append(users, *s.users[id])
	}
	return users, nil
}

func (s *Store) ListUsersByKarma(ctx context.Context, limit int64) ([]models.User, error) {
	users, _ := s.ListUsers(ctx)
	sort.SliceStable(users, func(i, j int) bool {
		return users[i].TotalKarma > users[j].TotalKarma
	})
	if int64(len(users)) > limit {
		users = users[:limit]
	}
	return users, nil
}

func (s *Store) CountUsersWithKarmaAbove(ctx context.Context, karma int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, u := range s.users {
		if u.TotalKarma > karma {
			n++
		}
	}
	return n, nil
}

func (s *Store) IncrementUserKarma(ctx context.Context, id primitive.ObjectID, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return storage.ErrNotFound
	}
	u.TotalKarma += delta
	return nil
}

func (s *Store) AddCategory(ctx context.Context, category *models.Category) (*models.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if category.ID.IsZero() {
		category.ID = primitive.NewObjectID()
	}
	clone := *category
	s.categories[category.ID] = &clone
	return category, nil
}

func (s *Store) FindCategory(ctx context.Context, id primitive.ObjectID) (*models.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.categories[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	clone := *c
	return &clone, nil
}

func (s *Store) AddHabit(ctx context.Context, habit *models.Habit) (*models.Habit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if habit.ID.IsZero() {
		habit.ID = primitive.NewObjectID()
	}
	clone := *habit
	s.habits[habit.ID] = &clone
	return habit, nil
}

func (s *Store) FindHabit(ctx context.Context, id primitive.ObjectID) (*models.Habit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.habits[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	clone := *h
	return &clone, nil
}

func (s *Store) FindHabitByTitle(ctx context.Context, userID primitive.ObjectID, title string) (*models.Habit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.habits {
		if h.UserID == userID && h.Title == title {
			clone := *h
			return &clone, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *Store) ListHabitsByUser(ctx context.Context, userID primitive.ObjectID) ([]models.Habit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var habits []models.Habit
	for _, h := range s.habits {
		if h.UserID == userID {
			habits = append(habits, *h)
		}
	}
	sort.Slice(habits, func(i, j int) bool { return habits[i].CreatedAt.After(habits[j].CreatedAt) })
	return habits, nil
}

func (s *Store) ListHabitsByCategory(ctx context.Context, categoryID primitive.ObjectID) ([]models.Habit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var habits []models.Habit
	for _, h := range s.habits {
		if h.CategoryID == categoryID {
			habits = append(habits, *h)
		}
	}
	return habits, nil
}

func (s *Store) UpdateHabit(ctx context.Context, habit *models.Habit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.habits[habit.ID]; !ok {
		return storage.ErrNotFound
	}
	clone := *habit
	s.habits[habit.ID] = &clone
	return nil
}

func (s *Store) DeleteHabit(ctx context.Context, id primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.habits[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.habits, id)
	for cid, c := range s.completions {
		if c.HabitID == id {
			delete(s.completions, cid)
		}
	}
	for aid, a := range s.atoms {
		if a.HabitID == id {
			for k := range s.votes {
				if k.atomID == aid {
					delete(s.votes, k)
				}
			}
			delete(s.atoms, aid)
		}
	}
	return nil
}

func (s *Store) AddCompletionInWindow(ctx context.Context, completion *models.Completion, start, end time.Time, max int) (*models.Completion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int
	for _, c := range s.completions {
		if c.HabitID == completion.HabitID && !c.CompletedAt.Before(start) && c.CompletedAt.Before(end) {
			count++
		}
	}
	if count >= max {
		return nil, storage.ErrWindowFull
	}
	if completion.ID.IsZero() {
		completion.ID = primitive.NewObjectID()
	}
	clone := *completion
	s.completions[completion.ID] = &clone
	return completion, nil
}

func (s *Store) CountCompletionsBetween(ctx context.Context, userID primitive.ObjectID, start, end time.Time) (int64, error) {
	completions, err := s.ListCompletionsBetween(ctx, userID, start, end)
	if err != nil {
		return 0, err
	}
	return int64(len(completions)), nil
}

func (s *Store) ListCompletionsBetween(ctx context.Context, userID primitive.ObjectID, start, end time.Time) ([]models.Completion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var completions []models.Completion
	for _, c := range s.completions {
		if c.UserID == userID && !c.CompletedAt.Before(start) && c.CompletedAt.Before(end) {
			completions = append(completions, *c)
		}
	}
	sort.Slice(completions, func(i, j int) bool {
		return completions[i].CompletedAt.Before(completions[j].CompletedAt)
	})
	return completions, nil
}

func (s *Store) ListCompletionsForHabits(ctx context.Context, habitIDs []primitive.ObjectID) ([]models.Completion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wanted := make(map[primitive.ObjectID]bool, len(habitIDs))
	for _, id := range habitIDs {
		wanted[id] = true
	}
	var completions []models.Completion
	for _, c := range s.completions {
		if wanted[c.HabitID] {
			completions = append(completions, *c)
		}
	}
	return completions, nil
}

func (s *Store) SetCompletionPublished(ctx context.Context, id primitive.ObjectID, published bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.completions[id]
	if !ok {
		return storage.ErrNotFound
	}
	c.IsPublished = published
	return nil
}

func (s *Store) AddAtom(ctx context.Context, atom *models.Atom) (*models.Atom, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.atoms {
		if a.CompletionID == atom.CompletionID {
			return nil, storage.ErrConflict
		}
	}
	if atom.ID.IsZero() {
		atom.ID = primitive.NewObjectID()
	}
	clone := *atom
	s.atoms[atom.ID] = &clone
	return atom, nil
}

func (s *Store) FindAtom(ctx context.Context, id primitive.ObjectID) (*models.Atom, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.atoms[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	clone := *a
	return &clone, nil
}

func (s *Store) ListTrendingAtoms(ctx context.Context, since time.Time, limit int64) ([]models.Atom, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var atoms []models.Atom
	for _, a := range s.atoms {
		if !a.CreatedAt.Before(since) && a.NetVotes > 0 {
			atoms = append(atoms, *a)
		}
	}
	sort.Slice(atoms, func(i, j int) bool {
		if atoms[i].NetVotes != atoms[j].NetVotes {
			return atoms[i].NetVotes > atoms[j].NetVotes
		}
		return atoms[i].CreatedAt.After(atoms[j].CreatedAt)
	})
	if int64(len(atoms)) > limit {
		atoms = atoms[:limit]
	}
	return atoms, nil
}

func (s *Store) FindVote(ctx context.Context, atomID, userID primitive.ObjectID) (*models.Vote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.votes[voteKey{atomID, userID}]
	if !ok {
		return nil, storage.ErrNotFound
	}
	clone := *v
	return &clone, nil
}

func (s *Store) CountVotesCastBetween(ctx context.Context, userID primitive.ObjectID, start, end time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, v := range s.votes {
		if v.UserID == userID && !v.CreatedAt.Before(start) && v.CreatedAt.Before(end) {
			n++
		}
	}
	return n, nil
}

func (s *Store) CommitVoteTransition(ctx context.Context, t models.VoteTransition) (*models.Atom, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	atom, ok := s.atoms[t.AtomID]
	if !ok {
		return nil, storage.ErrNotFound
	}

	key := voteKey{t.AtomID, t.UserID}
	existing := s.votes[key]

	switch t.Op {
	case models.VoteOpInsert:
		if existing != nil {
			return nil, storage.ErrConflict
		}
		s.votes[key] = &models.Vote{
			ID:        primitive.NewObjectID(),
			AtomID:    t.AtomID,
			UserID:    t.UserID,
			VoteType:  t.NewType,
			CreatedAt: time.Now(),
		}
	case models.VoteOpUpdate:
		if existing == nil || existing.VoteType != t.Expected {
			return nil, storage.ErrConflict
		}
		existing.VoteType = t.NewType
	case models.VoteOpDelete:
		if existing == nil || existing.VoteType != t.Expected {
			return nil, storage.ErrConflict
		}
		delete(s.votes, key)
	}

	atom.Upvotes += t.UpDelta
	atom.Downvotes += t.DownDelta
	atom.NetVotes += t.NetDelta
	atom.IsCompleted = atom.NetVotes > 0

	clone := *atom
	return &clone, nil
}
