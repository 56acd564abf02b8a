package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/AnshRaj112/mystery-message-backend/internal/models"
)

const (
	UsersCollection   = "users"
	usernameIndexName = "uniq_username"
	emailIndexName    = "uniq_email"
)

var (
	// profileProjection keeps the embedded inbox out of single-user lookups.
	profileProjection = bson.M{"messages": 0}
	// Pending registrations may share a username; the verified owner wins lookups.
	verifiedFirst = bson.D{{Key: "is_verified", Value: -1}}
)

// UserStore is the Mongo-backed identity store. Every mutation is a single-document
// update so concurrent requests never overwrite each other's effect.
type UserStore struct {
	coll *mongo.Collection
	now  func() time.Time
}

func NewUserStore(db *mongo.Database) *UserStore {
	return &UserStore{
		coll: db.Collection(UsersCollection),
		now:  time.Now,
	}
}

// EnsureIndexes creates the unique indexes: email across all users, username
// across verified users only. Called on startup from main after Mongo has connected.
func (s *UserStore) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "username", Value: 1}},
			Options: options.Index().
				SetName(usernameIndexName).
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"is_verified": true}),
		},
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetName(emailIndexName).SetUnique(true),
		},
	}
	if _, err := s.coll.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}
	return nil
}

func (s *UserStore) findOne(ctx context.Context, filter bson.M) (*models.User, error) {
	var u models.User
	opts := options.FindOne().SetProjection(profileProjection).SetSort(verifiedFirst)
	err := s.coll.FindOne(ctx, filter, opts).Decode(&u)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *UserStore) FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

// FindByUsername prefers the verified owner over pending registrations of the name.
func (s *UserStore) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.findOne(ctx, bson.M{"username": username})
}

// FindPendingByCode returns the unverified registration of username holding code.
func (s *UserStore) FindPendingByCode(ctx context.Context, username, code string) (*models.User, error) {
	return s.findOne(ctx, bson.M{"username": username, "is_verified": false, "verify_code": code})
}

func (s *UserStore) FindVerifiedByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.findOne(ctx, bson.M{"username": username, "is_verified": true})
}

func (s *UserStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findOne(ctx, bson.M{"email": email})
}

// FindByIdentifier matches either the username or the email.
func (s *UserStore) FindByIdentifier(ctx context.Context, identifier string) (*models.User, error) {
	return s.findOne(ctx, bson.M{"$or": bson.A{
		bson.M{"username": identifier},
		bson.M{"email": identifier},
	}})
}

// Insert stores a new user and fills in its ID.
func (s *UserStore) Insert(ctx context.Context, u *models.User) error {
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	now := s.now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	// $push on a null field fails, so the inbox always starts as an empty array.
	if u.Messages == nil {
		u.Messages = []models.Message{}
	}

	if _, err := s.coll.InsertOne(ctx, u); err != nil {
		return mapDuplicate(err)
	}
	return nil
}

// UpdatePending overwrites the registration fields of an unverified user.
// A verified (or missing) record yields ErrUserNotFound.
func (s *UserStore) UpdatePending(ctx context.Context, id primitive.ObjectID, upd models.PendingUpdate) error {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": id, "is_verified": false},
		bson.M{"$set": bson.M{
			"username":           upd.Username,
			"password_hash":      upd.PasswordHash,
			"verify_code":        upd.VerifyCode,
			"verify_code_expiry": upd.VerifyCodeExpiry.UTC(),
			"updated_at":         s.now().UTC(),
		}},
	)
	if err != nil {
		return mapDuplicate(err)
	}
	if res.MatchedCount == 0 {
		return models.ErrUserNotFound
	}
	return nil
}

// MarkVerified flips is_verified and clears the code, but only while the same code
// is still stored and unexpired. Reports whether this call did the transition.
// ErrDuplicateUsername means another registration of the name verified first.
func (s *UserStore) MarkVerified(ctx context.Context, id primitive.ObjectID, code string, now time.Time) (bool, error) {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{
			"_id":                id,
			"is_verified":        false,
			"verify_code":        code,
			"verify_code_expiry": bson.M{"$gte": now.UTC()},
		},
		bson.M{"$set": bson.M{
			"is_verified": true,
			"verify_code": "",
			"updated_at":  now.UTC(),
		}},
	)
	if err != nil {
		return false, mapDuplicate(err)
	}
	return res.MatchedCount == 1, nil
}

// AppendMessage atomically pushes msg onto the inbox of the verified user username
// if, and only if, that user is accepting messages. Returns the recipient's ID.
func (s *UserStore) AppendMessage(ctx context.Context, username string, msg models.Message) (primitive.ObjectID, error) {
	var doc struct {
		ID primitive.ObjectID `bson:"_id"`
	}
	err := s.coll.FindOneAndUpdate(ctx,
		bson.M{"username": username, "is_verified": true, "is_accepting_messages": true},
		bson.M{"$push": bson.M{"messages": msg}},
		options.FindOneAndUpdate().SetProjection(bson.M{"_id": 1}),
	).Decode(&doc)
	if err == nil {
		return doc.ID, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return primitive.NilObjectID, err
	}

	n, err := s.coll.CountDocuments(ctx, bson.M{"username": username, "is_verified": true})
	if err != nil {
		return primitive.NilObjectID, err
	}
	if n == 0 {
		return primitive.NilObjectID, models.ErrUserNotFound
	}
	return primitive.NilObjectID, models.ErrNotAccepting
}

// SetAcceptingMessages stores accept and returns the value now persisted.
func (s *UserStore) SetAcceptingMessages(ctx context.Context, id primitive.ObjectID, accept bool) (bool, error) {
	var u models.User
	err := s.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"is_accepting_messages": accept, "updated_at": s.now().UTC()}},
		options.FindOneAndUpdate().
			SetReturnDocument(options.After).
			SetProjection(bson.M{"is_accepting_messages": 1}),
	).Decode(&u)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return false, models.ErrUserNotFound
		}
		return false, err
	}
	return u.IsAcceptingMessages, nil
}

// ListMessages returns the inbox of id, newest first.
func (s *UserStore) ListMessages(ctx context.Context, id primitive.ObjectID) ([]models.Message, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "_id", Value: id}}}},
		{{Key: "$unwind", Value: "$messages"}},
		{{Key: "$sort", Value: bson.D{{Key: "messages.created_at", Value: -1}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$_id"},
			{Key: "messages", Value: bson.D{{Key: "$push", Value: "$messages"}}},
		}}},
	}

	cur, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var groups []struct {
		Messages []models.Message `bson:"messages"`
	}
	if err := cur.All(ctx, &groups); err != nil {
		return nil, err
	}
	if len(groups) > 0 {
		return groups[0].Messages, nil
	}

	// $unwind drops users with an empty inbox; tell those apart from unknown ids.
	n, err := s.coll.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, models.ErrUserNotFound
	}
	return []models.Message{}, nil
}

// Count returns the number of user documents.
func (s *UserStore) Count(ctx context.Context) (int64, error) {
	return s.coll.CountDocuments(ctx, bson.M{})
}

func mapDuplicate(err error) error {
	if !mongo.IsDuplicateKeyError(err) {
		return err
	}
	// The key value follows "dup key:", so only the index name can match here.
	if strings.Contains(err.Error(), "index: "+emailIndexName+" dup key") {
		return models.ErrDuplicateEmail
	}
	return models.ErrDuplicateUsername
}
