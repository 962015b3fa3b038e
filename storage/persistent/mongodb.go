package storage

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/atomly/atomly/models"
)

// MongoStorage is a struct representing a MongoDB storage.
// It provides an interface to perform CRUD operations on various collections
// in the MongoDB database, plus the atomic compound operations the engine
// relies on (windowed completion inserts and vote transitions).
type MongoStorage struct {
	client *mongo.Client
	dbName string
}

// NewMongoStorage creates a new instance of MongoStorage.
// This function doesn't establish a connection to the MongoDB server.
// To connect to the server, use the Connect method of the returned instance.
func NewMongoStorage() *MongoStorage {
	return &MongoStorage{}
}

// Connect establishes a connection to the MongoDB server at the given URI
// and database name. Sets up indexes and unique constraints as necessary.
// Returns an error if any issues are encountered.
func (m *MongoStorage) Connect(dbName, uri string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return fmt.Errorf("error connecting to MongoDB: %v", err)
	}

	m.client = client
	m.dbName = dbName

	// One active vote per (atom, user). This is the backstop for the
	// conditional vote writes in CommitVoteTransition.
	_, err = m.votes().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "atom_id", Value: 1}, {Key: "user_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("error creating vote index: %v", err)
	}

	// One atom per completion.
	_, err = m.atoms().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "completion_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("error creating atom index: %v", err)
	}

	// Window lookups scan a habit's completions by timestamp.
	_, err = m.completions().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "habit_id", Value: 1}, {Key: "completed_at", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("error creating completion index: %v", err)
	}

	_, err = m.users().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("error creating username index: %v", err)
	}

	return nil
}

// Disconnect closes the connection to the MongoDB server.
func (m *MongoStorage) Disconnect() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := m.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("error disconnecting from MongoDB: %v", err)
	}
	return nil
}

func (m *MongoStorage) users() *mongo.Collection       { return m.client.Database(m.dbName).Collection("users") }
func (m *MongoStorage) categories() *mongo.Collection  { return m.client.Database(m.dbName).Collection("categories") }
func (m *MongoStorage) habits() *mongo.Collection      { return m.client.Database(m.dbName).Collection("habits") }
func (m *MongoStorage) completions() *mongo.Collection { return m.client.Database(m.dbName).Collection("completions") }
func (m *MongoStorage) atoms() *mongo.Collection       { return m.client.Database(m.dbName).Collection("atoms") }
func (m *MongoStorage) votes() *mongo.Collection       { return m.client.Database(m.dbName).Collection("votes") }

func (m *MongoStorage) AddUser(ctx context.Context, user *models.User) (*models.User, error) {
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	if _, err := m.users().InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrConflict
		}
		return nil, err
	}
	return user, nil
}

func (m *MongoStorage) FindUser(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	user := &models.User{}
	err := m.users().FindOne(ctx, bson.M{"_id": id}).Decode(user)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (m *MongoStorage) ListUsers(ctx context.Context) ([]models.User, error) {
	cursor, err := m.users().Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	var users []models.User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (m *MongoStorage) ListUsersByKarma(ctx context.Context, limit int64) ([]models.User, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "total_karma", Value: -1}, {Key: "_id", Value: 1}}).
		SetLimit(limit)
	cursor, err := m.users().Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	var users []models.User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (m *MongoStorage) CountUsersWithKarmaAbove(ctx context.Context, karma int) (int64, error) {
	return m.users().CountDocuments(ctx, bson.M{"total_karma": bson.M{"$gt": karma}})
}

// IncrementUserKarma is the only path that mutates a user's stored karma.
func (m *MongoStorage) IncrementUserKarma(ctx context.Context, id primitive.ObjectID, delta int) error {
	result, err := m.users().UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$inc": bson.M{"total_karma": delta}})
	if err != nil {
		return fmt.Errorf("error incrementing user karma: %v", err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *MongoStorage) AddCategory(ctx context.Context, category *models.Category) (*models.Category, error) {
	if category.ID.IsZero() {
		category.ID = primitive.NewObjectID()
	}
	if _, err := m.categories().InsertOne(ctx, category); err != nil {
		return nil, err
	}
	return category, nil
}

func (m *MongoStorage) FindCategory(ctx context.Context, id primitive.ObjectID) (*models.Category, error) {
	category := &models.Category{}
	err := m.categories().FindOne(ctx, bson.M{"_id": id}).Decode(category)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return category, nil
}

func (m *MongoStorage) AddHabit(ctx context.Context, habit *models.Habit) (*models.Habit, error) {
	if habit.ID.IsZero() {
		habit.ID = primitive.NewObjectID()
	}
	if _, err := m.habits().InsertOne(ctx, habit); err != nil {
		return nil, err
	}
	return habit, nil
}

func (m *MongoStorage) FindHabit(ctx context.Context, id primitive.ObjectID) (*models.Habit, error) {
	habit := &models.Habit{}
	err := m.habits().FindOne(ctx, bson.M{"_id": id}).Decode(habit)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return habit, nil
}

func (m *MongoStorage) FindHabitByTitle(ctx context.Context, userID primitive.ObjectID, title string) (*models.Habit, error) {
	habit := &models.Habit{}
	err := m.habits().FindOne(ctx, bson.M{"user_id": userID, "title": title}).Decode(habit)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return habit, nil
}

func (m *MongoStorage) ListHabitsByUser(ctx context.Context, userID primitive.ObjectID) ([]models.Habit, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := m.habits().Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	var habits []models.Habit
	if err := cursor.All(ctx, &habits); err != nil {
		return nil, err
	}
	return habits, nil
}

func (m *MongoStorage) ListHabitsByCategory(ctx context.Context, categoryID primitive.ObjectID) ([]models.Habit, error) {
	cursor, err := m.habits().Find(ctx, bson.M{"category_id": categoryID})
	if err != nil {
		return nil, err
	}
	var habits []models.Habit
	if err := cursor.All(ctx, &habits); err != nil {
		return nil, err
	}
	return habits, nil
}

func (m *MongoStorage) UpdateHabit(ctx context.Context, habit *models.Habit) error {
	result, err := m.habits().ReplaceOne(ctx, bson.M{"_id": habit.ID}, habit)
	if err != nil {
		return fmt.Errorf("error updating habit: %v", err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteHabit removes a habit together with its completions, atoms and the
// votes cast on those atoms.
func (m *MongoStorage) DeleteHabit(ctx context.Context, id primitive.ObjectID) error {
	cursor, err := m.atoms().Find(ctx, bson.M{"habit_id": id})
	if err != nil {
		return err
	}
	var atoms []models.Atom
	if err := cursor.All(ctx, &atoms); err != nil {
		return err
	}
	atomIDs := make([]primitive.ObjectID, 0, len(atoms))
	for _, a := range atoms {
		atomIDs = append(atomIDs, a.ID)
	}

	if len(atomIDs) > 0 {
		if _, err := m.votes().DeleteMany(ctx, bson.M{"atom_id": bson.M{"$in": atomIDs}}); err != nil {
			return err
		}
	}
	if _, err := m.atoms().DeleteMany(ctx, bson.M{"habit_id": id}); err != nil {
		return err
	}
	if _, err := m.completions().DeleteMany(ctx, bson.M{"habit_id": id}); err != nil {
		return err
	}

	result, err := m.habits().DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// AddCompletionInWindow counts the habit's completions inside [start, end)
// and inserts the new one only when the count is below max. Both steps run
// inside one session transaction so two concurrent attempts cannot both
// observe a free window.
func (m *MongoStorage) AddCompletionInWindow(ctx context.Context, completion *models.Completion, start, end time.Time, max int) (*models.Completion, error) {
	if completion.ID.IsZero() {
		completion.ID = primitive.NewObjectID()
	}

	session, err := m.client.StartSession()
	if err != nil {
		return nil, fmt.Errorf("error starting session: %v", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		count, err := m.completions().CountDocuments(sc, bson.M{
			"habit_id":     completion.HabitID,
			"completed_at": bson.M{"$gte": start, "$lt": end},
		})
		if err != nil {
			return nil, err
		}
		if count >= int64(max) {
			return nil, ErrWindowFull
		}
		return m.completions().InsertOne(sc, completion)
	})
	if err != nil {
		return nil, err
	}
	return completion, nil
}

func (m *MongoStorage) CountCompletionsBetween(ctx context.Context, userID primitive.ObjectID, start, end time.Time) (int64, error) {
	return m.completions().CountDocuments(ctx, bson.M{
		"user_id":      userID,
		"completed_at": bson.M{"$gte": start, "$lt": end},
	})
}

func (m *MongoStorage) ListCompletionsBetween(ctx context.Context, userID primitive.ObjectID, start, end time.Time) ([]models.Completion, error) {
	opts := options.Find().SetSort(bson.D{{Key: "completed_at", Value: 1}})
	cursor, err := m.completions().Find(ctx, bson.M{
		"user_id":      userID,
		"completed_at": bson.M{"$gte": start, "$lt": end},
	}, opts)
	if err != nil {
		return nil, err
	}
	var completions []models.Completion
	if err := cursor.All(ctx, &completions); err != nil {
		return nil, err
	}
	return completions, nil
}

func (m *MongoStorage) ListCompletionsForHabits(ctx context.Context, habitIDs []primitive.ObjectID) ([]models.Completion, error) {
	if len(habitIDs) == 0 {
		return nil, nil
	}
	cursor, err := m.completions().Find(ctx, bson.M{"habit_id": bson.M{"$in": habitIDs}})
	if err != nil {
		return nil, err
	}
	var completions []models.Completion
	if err := cursor.All(ctx, &completions); err != nil {
		return nil, err
	}
	return completions, nil
}

func (m *MongoStorage) SetCompletionPublished(ctx context.Context, id primitive.ObjectID, published bool) error {
	result, err := m.completions().UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"is_published": published}})
	if err != nil {
		return fmt.Errorf("error updating completion: %v", err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *MongoStorage) AddAtom(ctx context.Context, atom *models.Atom) (*models.Atom, error) {
	if atom.ID.IsZero() {
		atom.ID = primitive.NewObjectID()
	}
	if _, err := m.atoms().InsertOne(ctx, atom); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrConflict
		}
		return nil, err
	}
	return atom, nil
}

func (m *MongoStorage) FindAtom(ctx context.Context, id primitive.ObjectID) (*models.Atom, error) {
	atom := &models.Atom{}
	err := m.atoms().FindOne(ctx, bson.M{"_id": id}).Decode(atom)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return atom, nil
}

func (m *MongoStorage) ListTrendingAtoms(ctx context.Context, since time.Time, limit int64) ([]models.Atom, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "net_votes", Value: -1}, {Key: "created_at", Value: -1}}).
		SetLimit(limit)
	cursor, err := m.atoms().Find(ctx, bson.M{
		"created_at": bson.M{"$gte": since},
		"net_votes":  bson.M{"$gt": 0},
	}, opts)
	if err != nil {
		return nil, err
	}
	var atoms []models.Atom
	if err := cursor.All(ctx, &atoms); err != nil {
		return nil, err
	}
	return atoms, nil
}

func (m *MongoStorage) FindVote(ctx context.Context, atomID, userID primitive.ObjectID) (*models.Vote, error) {
	vote := &models.Vote{}
	err := m.votes().FindOne(ctx, bson.M{"atom_id": atomID, "user_id": userID}).Decode(vote)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return vote, nil
}

func (m *MongoStorage) CountVotesCastBetween(ctx context.Context, userID primitive.ObjectID, start, end time.Time) (int64, error) {
	return m.votes().CountDocuments(ctx, bson.M{
		"user_id":    userID,
		"created_at": bson.M{"$gte": start, "$lt": end},
	})
}

// CommitVoteTransition applies one step of the vote state machine. The vote
// write is conditional on the stored vote still matching t.Expected, and the
// counter update re-derives is_completed in the same pipeline update, so a
// reader can never observe counters without the matching flag. Everything
// runs inside one session transaction.
func (m *MongoStorage) CommitVoteTransition(ctx context.Context, t models.VoteTransition) (*models.Atom, error) {
	session, err := m.client.StartSession()
	if err != nil {
		return nil, fmt.Errorf("error starting session: %v", err)
	}
	defer session.EndSession(ctx)

	result, err := session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		switch t.Op {
		case models.VoteOpInsert:
			_, err := m.votes().InsertOne(sc, &models.Vote{
				ID:        primitive.NewObjectID(),
				AtomID:    t.AtomID,
				UserID:    t.UserID,
				VoteType:  t.NewType,
				CreatedAt: time.Now(),
			})
			if mongo.IsDuplicateKeyError(err) {
				return nil, ErrConflict
			}
			if err != nil {
				return nil, err
			}

		case models.VoteOpUpdate:
			res, err := m.votes().UpdateOne(sc,
				bson.M{"atom_id": t.AtomID, "user_id": t.UserID, "vote_type": t.Expected},
				bson.M{"$set": bson.M{"vote_type": t.NewType}},
			)
			if err != nil {
				return nil, err
			}
			if res.MatchedCount == 0 {
				return nil, ErrConflict
			}

		case models.VoteOpDelete:
			res, err := m.votes().DeleteOne(sc,
				bson.M{"atom_id": t.AtomID, "user_id": t.UserID, "vote_type": t.Expected},
			)
			if err != nil {
				return nil, err
			}
			if res.DeletedCount == 0 {
				return nil, ErrConflict
			}

		default:
			return nil, fmt.Errorf("unknown vote op %q", t.Op)
		}

		update := mongo.Pipeline{
			{{Key: "$set", Value: bson.M{
				"upvotes":   bson.M{"$add": bson.A{"$upvotes", t.UpDelta}},
				"downvotes": bson.M{"$add": bson.A{"$downvotes", t.DownDelta}},
				"net_votes": bson.M{"$add": bson.A{"$net_votes", t.NetDelta}},
				"is_completed": bson.M{"$gt": bson.A{
					bson.M{"$add": bson.A{"$net_votes", t.NetDelta}}, 0,
				}},
			}}},
		}
		opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
		atom := &models.Atom{}
		err := m.atoms().FindOneAndUpdate(sc, bson.M{"_id": t.AtomID}, update, opts).Decode(atom)
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, err
		}
		return atom, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*models.Atom), nil
}
