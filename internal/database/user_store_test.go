package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/AnshRaj112/mystery-message-backend/internal/models"
)

const ns = "mystery_message.users"

func TestUserStore_EnsureIndexes(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("username unique among verified users only", func(mt *mtest.T) {
		store := NewUserStore(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		require.NoError(mt, store.EnsureIndexes(context.Background()))

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		assert.Equal(mt, "createIndexes", evt.CommandName)

		vals, err := evt.Command.Lookup("indexes").Array().Values()
		require.NoError(mt, err)
		require.Len(mt, vals, 2)
		byName := make(map[string]bson.Raw, len(vals))
		for _, v := range vals {
			doc := v.Document()
			byName[doc.Lookup("name").StringValue()] = doc
		}

		partial, err := byName[usernameIndexName].LookupErr("partialFilterExpression")
		require.NoError(mt, err)
		assert.True(mt, partial.Document().Lookup("is_verified").Boolean())
		assert.True(mt, byName[usernameIndexName].Lookup("unique").Boolean())

		_, err = byName[emailIndexName].LookupErr("partialFilterExpression")
		assert.Error(mt, err)
		assert.True(mt, byName[emailIndexName].Lookup("unique").Boolean())
	})
}

func TestUserStore_FindByUsername(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("found", func(mt *mtest.T) {
		store := NewUserStore(mt.DB)
		id := primitive.NewObjectID()

		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{
			{Key: "_id", Value: id},
			{Key: "username", Value: "alice"},
			{Key: "email", Value: "a@x.com"},
			{Key: "is_verified", Value: true},
			{Key: "is_accepting_messages", Value: true},
		}))

		u, err := store.FindByUsername(context.Background(), "alice")
		require.NoError(mt, err)
		assert.Equal(mt, id, u.ID)
		assert.Equal(mt, "a@x.com", u.Email)
		assert.True(mt, u.IsVerified)
		assert.True(mt, u.IsAcceptingMessages)

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		assert.EqualValues(mt, -1, evt.Command.Lookup("sort", "is_verified").Int32())
	})

	mt.Run("not found", func(mt *mtest.T) {
		store := NewUserStore(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))

		u, err := store.FindByUsername(context.Background(), "ghost")
		assert.ErrorIs(mt, err, models.ErrUserNotFound)
		assert.Nil(mt, u)
	})

	mt.Run("store error", func(mt *mtest.T) {
		store := NewUserStore(mt.DB)
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    91,
			Name:    "ShutdownInProgress",
			Message: "shutting down",
		}))

		_, err := store.FindByUsername(context.Background(), "alice")
		require.Error(mt, err)
		assert.NotErrorIs(mt, err, models.ErrUserNotFound)
	})
}

func TestUserStore_Insert(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("success", func(mt *mtest.T) {
		store := NewUserStore(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		u := &models.User{Username: "alice", Email: "a@x.com", IsAcceptingMessages: true}
		require.NoError(mt, store.Insert(context.Background(), u))
		assert.False(mt, u.ID.IsZero())
		assert.NotNil(mt, u.Messages)
		assert.False(mt, u.CreatedAt.IsZero())
	})

	mt.Run("duplicate email", func(mt *mtest.T) {
		store := NewUserStore(mt.DB)
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "E11000 duplicate key error collection: mystery_message.users index: uniq_email dup key: { email: \"a@x.com\" }",
		}))

		err := store.Insert(context.Background(), &models.User{Username: "bob", Email: "a@x.com"})
		assert.ErrorIs(mt, err, models.ErrDuplicateEmail)
	})

	mt.Run("duplicate username", func(mt *mtest.T) {
		store := NewUserStore(mt.DB)
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "E11000 duplicate key error collection: mystery_message.users index: uniq_username dup key: { username: \"alice\" }",
		}))

		err := store.Insert(context.Background(), &models.User{Username: "alice", Email: "b@x.com"})
		assert.ErrorIs(mt, err, models.ErrDuplicateUsername)
	})

	mt.Run("username spelled like the email index", func(mt *mtest.T) {
		store := NewUserStore(mt.DB)
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "E11000 duplicate key error collection: mystery_message.users index: uniq_username dup key: { username: \"uniq_email\" }",
		}))

		err := store.Insert(context.Background(), &models.User{Username: "uniq_email", Email: "c@x.com", IsVerified: true})
		assert.ErrorIs(mt, err, models.ErrDuplicateUsername)
	})
}

func TestUserStore_UpdatePending(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("matched", func(mt *mtest.T) {
		store := NewUserStore(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))

		err := store.UpdatePending(context.Background(), primitive.NewObjectID(), models.PendingUpdate{
			Username:         "alice",
			PasswordHash:     "hash",
			VerifyCode:       "123456",
			VerifyCodeExpiry: time.Now().Add(time.Hour),
		})
		assert.NoError(mt, err)
	})

	mt.Run("verified or missing", func(mt *mtest.T) {
		store := NewUserStore(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 0},
			bson.E{Key: "nModified", Value: 0},
		))

		err := store.UpdatePending(context.Background(), primitive.NewObjectID(), models.PendingUpdate{})
		assert.ErrorIs(mt, err, models.ErrUserNotFound)
	})
}

func TestUserStore_MarkVerified(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("transitioned", func(mt *mtest.T) {
		store := NewUserStore(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))

		ok, err := store.MarkVerified(context.Background(), primitive.NewObjectID(), "123456", time.Now())
		require.NoError(mt, err)
		assert.True(mt, ok)
	})

	mt.Run("code no longer matches", func(mt *mtest.T) {
		store := NewUserStore(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 0},
			bson.E{Key: "nModified", Value: 0},
		))

		ok, err := store.MarkVerified(context.Background(), primitive.NewObjectID(), "123456", time.Now())
		require.NoError(mt, err)
		assert.False(mt, ok)
	})

	mt.Run("name already verified by another registration", func(mt *mtest.T) {
		store := NewUserStore(mt.DB)
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "E11000 duplicate key error collection: mystery_message.users index: uniq_username dup key: { username: \"alice\" }",
		}))

		ok, err := store.MarkVerified(context.Background(), primitive.NewObjectID(), "123456", time.Now())
		assert.ErrorIs(mt, err, models.ErrDuplicateUsername)
		assert.False(mt, ok)
	})
}

func TestUserStore_FindPendingByCode(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("found", func(mt *mtest.T) {
		store := NewUserStore(mt.DB)
		id := primitive.NewObjectID()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{
			{Key: "_id", Value: id},
			{Key: "username", Value: "alice"},
			{Key: "email", Value: "b@x.com"},
			{Key: "verify_code", Value: "123456"},
			{Key: "is_verified", Value: false},
		}))

		u, err := store.FindPendingByCode(context.Background(), "alice", "123456")
		require.NoError(mt, err)
		assert.Equal(mt, id, u.ID)
		assert.Equal(mt, "b@x.com", u.Email)

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		filter := evt.Command.Lookup("filter").Document()
		assert.False(mt, filter.Lookup("is_verified").Boolean())
		assert.Equal(mt, "123456", filter.Lookup("verify_code").StringValue())
	})

	mt.Run("no match", func(mt *mtest.T) {
		store := NewUserStore(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))

		_, err := store.FindPendingByCode(context.Background(), "alice", "000000")
		assert.ErrorIs(mt, err, models.ErrUserNotFound)
	})
}

func TestUserStore_AppendMessage(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("appended", func(mt *mtest.T) {
		store := NewUserStore(mt.DB)
		id := primitive.NewObjectID()
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "value", Value: bson.D{{Key: "_id", Value: id}}},
		))

		got, err := store.AppendMessage(context.Background(), "alice", models.NewMessage("hello", time.Now()))
		require.NoError(mt, err)
		assert.Equal(mt, id, got)

		evt := mt.GetStartedEvent()
		require.NotNil(mt, evt)
		assert.True(mt, evt.Command.Lookup("query", "is_verified").Boolean())
	})

	mt.Run("not accepting", func(mt *mtest.T) {
		store := NewUserStore(mt.DB)
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "value", Value: nil}),
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{{Key: "n", Value: int32(1)}}),
		)

		_, err := store.AppendMessage(context.Background(), "alice", models.NewMessage("hello", time.Now()))
		assert.ErrorIs(mt, err, models.ErrNotAccepting)
	})

	mt.Run("unknown recipient", func(mt *mtest.T) {
		store := NewUserStore(mt.DB)
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "value", Value: nil}),
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch),
		)

		_, err := store.AppendMessage(context.Background(), "ghost", models.NewMessage("hello", time.Now()))
		assert.ErrorIs(mt, err, models.ErrUserNotFound)
	})
}

func TestUserStore_SetAcceptingMessages(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("updated", func(mt *mtest.T) {
		store := NewUserStore(mt.DB)
		id := primitive.NewObjectID()
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "value", Value: bson.D{
				{Key: "_id", Value: id},
				{Key: "is_accepting_messages", Value: false},
			}},
		))

		got, err := store.SetAcceptingMessages(context.Background(), id, false)
		require.NoError(mt, err)
		assert.False(mt, got)
	})

	mt.Run("missing", func(mt *mtest.T) {
		store := NewUserStore(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "value", Value: nil}))

		_, err := store.SetAcceptingMessages(context.Background(), primitive.NewObjectID(), true)
		assert.ErrorIs(mt, err, models.ErrUserNotFound)
	})
}

func TestUserStore_ListMessages(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("newest first from pipeline", func(mt *mtest.T) {
		store := NewUserStore(mt.DB)
		id := primitive.NewObjectID()
		newer := time.Date(2026, 10, 2, 0, 0, 0, 0, time.UTC)
		older := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{
			{Key: "_id", Value: id},
			{Key: "messages", Value: bson.A{
				bson.D{{Key: "_id", Value: primitive.NewObjectID()}, {Key: "content", Value: "second"}, {Key: "created_at", Value: newer}},
				bson.D{{Key: "_id", Value: primitive.NewObjectID()}, {Key: "content", Value: "first"}, {Key: "created_at", Value: older}},
			}},
		}))

		msgs, err := store.ListMessages(context.Background(), id)
		require.NoError(mt, err)
		require.Len(mt, msgs, 2)
		assert.Equal(mt, "second", msgs[0].Content)
		assert.True(mt, msgs[0].CreatedAt.Equal(newer))
	})

	mt.Run("empty inbox", func(mt *mtest.T) {
		store := NewUserStore(mt.DB)
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch),
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{{Key: "n", Value: int32(1)}}),
		)

		msgs, err := store.ListMessages(context.Background(), primitive.NewObjectID())
		require.NoError(mt, err)
		assert.Empty(mt, msgs)
		assert.NotNil(mt, msgs)
	})
}
