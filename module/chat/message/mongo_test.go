package message_test

import (
	"context"
	"os"
	"testing"
	"time"

	"chatcore/data/database/mgo/mongoutil"
	"chatcore/module/chat/message"
	"chatcore/module/chat/message/storetest"
	"chatcore/module/chat/model"
	"chatcore/tools/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func TestMongoStore_Mock(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()
	ns := "chat." + model.RoomTableName

	mt.Run("GetRoom", func(mt *mtest.T) {
		created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{
			{Key: "_id", Value: "alice_bob"},
			{Key: "participant_a", Value: "alice"},
			{Key: "participant_b", Value: "bob"},
			{Key: "created_at", Value: created},
		}))

		r, err := message.NewMongoStore(mt.DB).GetRoom(ctx, "alice_bob")
		require.NoError(mt, err)
		assert.Equal(mt, "bob", r.ParticipantB)
		assert.True(mt, created.Equal(r.CreatedAt))
		assert.Nil(mt, r.LastMessageAt)
	})

	mt.Run("GetRoomNotFound", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))

		_, err := message.NewMongoStore(mt.DB).GetRoom(ctx, "alice_bob")
		assert.ErrorIs(mt, err, errs.ErrNotFound)
	})

	mt.Run("CreateRoomDuplicate", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "E11000 duplicate key error",
		}))

		err := message.NewMongoStore(mt.DB).CreateRoom(ctx, &model.Room{ID: "alice_bob", ParticipantA: "alice", ParticipantB: "bob"})
		assert.ErrorIs(mt, err, message.ErrRoomExists)
	})

	mt.Run("AppendBumpsThenInserts", func(mt *mtest.T) {
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}),
			mtest.CreateSuccessResponse(),
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{{Key: "_id", Value: 1}, {Key: "n", Value: int64(1)}}),
		)

		m, err := message.NewMongoStore(mt.DB).Append(ctx, &model.Message{SenderID: "bob", ReceiverID: "alice", Content: "hi"})
		require.NoError(mt, err)
		assert.Equal(mt, "alice_bob", m.RoomID)
	})

	mt.Run("AppendRacingDeleteIsWithdrawn", func(mt *mtest.T) {
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}),
			mtest.CreateSuccessResponse(),
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}),
		)

		_, err := message.NewMongoStore(mt.DB).Append(ctx, &model.Message{SenderID: "bob", ReceiverID: "alice", Content: "hi"})
		assert.ErrorIs(mt, err, errs.ErrNotFound)
	})

	mt.Run("AppendMissingRoom", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}))

		_, err := message.NewMongoStore(mt.DB).Append(ctx, &model.Message{SenderID: "bob", ReceiverID: "alice", Content: "hi"})
		assert.ErrorIs(mt, err, errs.ErrNotFound)
	})

	mt.Run("MarkAllRead", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 2}, bson.E{Key: "nModified", Value: 2}))

		n, err := message.NewMongoStore(mt.DB).MarkAllRead(ctx, "alice_bob", "alice")
		require.NoError(mt, err)
		assert.EqualValues(mt, 2, n)
	})

	mt.Run("CountUnread", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "chat."+model.MsgTableName, mtest.FirstBatch,
			bson.D{{Key: "_id", Value: 1}, {Key: "n", Value: int64(3)}}))

		n, err := message.NewMongoStore(mt.DB).CountUnread(ctx, "alice_bob", "alice")
		require.NoError(mt, err)
		assert.EqualValues(mt, 3, n)
	})

	mt.Run("CommandFailureIsUnavailable", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    1,
			Name:    "InternalError",
			Message: "storage engine failure",
		}))

		_, err := message.NewMongoStore(mt.DB).CountUnreadTotal(ctx, "alice")
		assert.ErrorIs(mt, err, message.ErrUnavailable)
	})
}

// TestMongoStore_Contract runs against a real server when MONGO_URI is set.
func TestMongoStore_Contract(t *testing.T) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set")
	}
	storetest.Run(t, func(t *testing.T) message.Store {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		cli, err := mongoutil.NewMongoDB(ctx, &mongoutil.Config{Uri: uri, Database: "chat_test", MaxRetry: 1})
		require.NoError(t, err)
		t.Cleanup(func() { _ = cli.Close(context.Background()) })

		s := message.NewMongoStore(cli.GetDB())
		require.NoError(t, s.EnsureIndexes(ctx))
		return s
	})
}
