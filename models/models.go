package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// HabitType decides whether a completion may be published as an atom.
type HabitType string

const (
	HabitTypePersonal  HabitType = "Personal"
	HabitTypeShareable HabitType = "Shareable"
)

func (t HabitType) Valid() bool {
	return t == HabitTypePersonal || t == HabitTypeShareable
}

// Slot is a time-of-day tag. It does not participate in eligibility logic.
type Slot string

const (
	SlotMorning   Slot = "Morning"
	SlotAfternoon Slot = "Afternoon"
	SlotEvening   Slot = "Evening"
	SlotNight     Slot = "Night"
)

func (s Slot) Valid() bool {
	switch s {
	case SlotMorning, SlotAfternoon, SlotEvening, SlotNight:
		return true
	}
	return false
}

// VoteType is the direction of a vote on an atom.
type VoteType string

const (
	VoteUp   VoteType = "upvote"
	VoteDown VoteType = "downvote"
)

func (v VoteType) Valid() bool {
	return v == VoteUp || v == VoteDown
}

type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Username     string             `bson:"username" json:"username"`
	ProfileImage string             `bson:"profile_image,omitempty" json:"profileImage,omitempty"`
	TotalKarma   int                `bson:"total_karma" json:"totalKarma"`
	CreatedAt    time.Time          `bson:"created_at" json:"createdAt"`
}

type Category struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID    primitive.ObjectID `bson:"user_id,omitempty" json:"userId,omitempty"`
	Name      string             `bson:"name" json:"name"`
	Icon      string             `bson:"icon,omitempty" json:"icon,omitempty"`
	IsDefault bool               `bson:"is_default" json:"isDefault"`
}

type Habit struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID      primitive.ObjectID `bson:"user_id" json:"userId"`
	CategoryID  primitive.ObjectID `bson:"category_id" json:"categoryId"`
	Title       string             `bson:"title" json:"title"`
	Description string             `bson:"description,omitempty" json:"description,omitempty"`
	Type        HabitType          `bson:"type" json:"type"`
	Occurrence  string             `bson:"occurrence" json:"occurrence"`
	Slot        Slot               `bson:"slot" json:"slot"`
	StartDate   time.Time          `bson:"start_date" json:"startDate"`
	EndDate     *time.Time         `bson:"end_date,omitempty" json:"endDate,omitempty"`
	IsActive    bool               `bson:"is_active" json:"isActive"`
	CreatedAt   time.Time          `bson:"created_at" json:"createdAt"`
}

// Completion is one recorded habit completion. The timestamp is fixed at
// creation; only IsPublished may change afterwards, when an atom is attached.
type Completion struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	HabitID     primitive.ObjectID `bson:"habit_id" json:"habitId"`
	UserID      primitive.ObjectID `bson:"user_id" json:"userId"`
	CompletedAt time.Time          `bson:"completed_at" json:"completedAt"`
	Image       string             `bson:"image,omitempty" json:"image,omitempty"`
	Notes       string             `bson:"notes,omitempty" json:"notes,omitempty"`
	IsPublished bool               `bson:"is_published" json:"isPublished"`
}

// Atom is the shareable post behind a completion. HabitTitle, HabitType,
// Occurrence and CompletionTime are snapshots taken at creation so later
// habit edits do not rewrite historical posts. The vote counters and
// IsCompleted mutate only through the storage vote-transition commit.
type Atom struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	CompletionID   primitive.ObjectID `bson:"completion_id" json:"completionId"`
	HabitID        primitive.ObjectID `bson:"habit_id" json:"habitId"`
	UserID         primitive.ObjectID `bson:"user_id" json:"userId"`
	Image          string             `bson:"image" json:"image"`
	Caption        string             `bson:"caption" json:"caption"`
	HabitTitle     string             `bson:"habit_title" json:"habitTitle"`
	HabitType      HabitType          `bson:"habit_type" json:"habitType"`
	Occurrence     string             `bson:"occurrence" json:"occurrence"`
	CompletionTime time.Time          `bson:"completion_time" json:"completionTime"`
	Upvotes        int                `bson:"upvotes" json:"upvotes"`
	Downvotes      int                `bson:"downvotes" json:"downvotes"`
	NetVotes       int                `bson:"net_votes" json:"netVotes"`
	IsCompleted    bool               `bson:"is_completed" json:"isCompleted"`
	CreatedAt      time.Time          `bson:"created_at" json:"createdAt"`
}

// Vote is unique per (atom, user); a unique index enforces that in Mongo.
type Vote struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	AtomID    primitive.ObjectID `bson:"atom_id" json:"atomId"`
	UserID    primitive.ObjectID `bson:"user_id" json:"userId"`
	VoteType  VoteType           `bson:"vote_type" json:"voteType"`
	CreatedAt time.Time          `bson:"created_at" json:"createdAt"`
}

// VoteOp is the storage-level operation a vote transition performs.
type VoteOp string

const (
	VoteOpInsert VoteOp = "insert"
	VoteOpUpdate VoteOp = "update"
	VoteOpDelete VoteOp = "delete"
)

// VoteTransition is one step of the per-(atom,user) vote state machine,
// expressed as a conditional write: Expected is the vote type the transition
// assumes is currently stored ("" for none). Storage must refuse the commit
// if the stored state no longer matches, so a raced transition never applies
// its deltas on top of a state it did not compute them from.
type VoteTransition struct {
	AtomID    primitive.ObjectID
	UserID    primitive.ObjectID
	Expected  VoteType // "" means no existing vote
	Op        VoteOp
	NewType   VoteType // set for insert/update
	UpDelta   int
	DownDelta int
	NetDelta  int
}
