package message

import (
	"context"
	"errors"

	"chatcore/module/chat/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore implements Store on two collections. The room id is the
// document _id, which gives uniqueness for free.
type MongoStore struct {
	RoomColl *mongo.Collection
	MsgColl  *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		RoomColl: db.Collection(model.RoomTableName),
		MsgColl:  db.Collection(model.MsgTableName),
	}
}

var _ Store = (*MongoStore)(nil)

// EnsureIndexes creates the secondary indexes the queries below rely on.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	if _, err := s.RoomColl.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "participant_a", Value: 1}}},
		{Keys: bson.D{{Key: "participant_b", Value: 1}}},
	}); err != nil {
		return classify(err, "room indexes")
	}
	if _, err := s.MsgColl.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "room_id", Value: 1}, {Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}},
		{Keys: bson.D{{Key: "receiver_id", Value: 1}, {Key: "is_read", Value: 1}}},
	}); err != nil {
		return classify(err, "message indexes")
	}
	return nil
}

func (s *MongoStore) GetRoom(ctx context.Context, id string) (*model.Room, error) {
	var r model.Room
	if err := s.RoomColl.FindOne(ctx, bson.M{"_id": id}).Decode(&r); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, notFound("room", id)
		}
		return nil, classify(err, "get room")
	}
	return &r, nil
}

func (s *MongoStore) CreateRoom(ctx context.Context, r *model.Room) error {
	doc := *r
	doc.LastMessageAt = nil
	if _, err := s.RoomColl.InsertOne(ctx, &doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrRoomExists
		}
		return classify(err, "create room")
	}
	return nil
}

func (s *MongoStore) ListRooms(ctx context.Context, userID string) ([]*model.Room, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"participant_a": userID},
		bson.M{"participant_b": userID},
	}}
	// a missing last_message_at sorts lowest, so descending puts it last
	opts := options.Find().SetSort(bson.D{
		{Key: "last_message_at", Value: -1},
		{Key: "created_at", Value: -1},
		{Key: "_id", Value: 1},
	})
	cur, err := s.RoomColl.Find(ctx, filter, opts)
	if err != nil {
		return nil, classify(err, "list rooms")
	}
	out := make([]*model.Room, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, classify(err, "list rooms")
	}
	return out, nil
}

// DeleteRoom removes the room first so concurrent appends fail with not found,
// then its messages. An append that bumped the room before the delete and
// inserts after DeleteMany is caught by Append's own recheck.
func (s *MongoStore) DeleteRoom(ctx context.Context, id string) error {
	res, err := s.RoomColl.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return classify(err, "delete room")
	}
	if res.DeletedCount == 0 {
		return notFound("room", id)
	}
	if _, err := s.MsgColl.DeleteMany(ctx, bson.M{"room_id": id}); err != nil {
		return classify(err, "delete messages")
	}
	return nil
}

func (s *MongoStore) Append(ctx context.Context, m *model.Message) (*model.Message, error) {
	m, err := prepare(m)
	if err != nil {
		return nil, err
	}
	// $max 只在变大时更新
	res, err := s.RoomColl.UpdateOne(ctx,
		bson.M{"_id": m.RoomID},
		bson.M{"$max": bson.M{"last_message_at": m.CreatedAt}})
	if err != nil {
		return nil, classify(err, "append")
	}
	if res.MatchedCount == 0 {
		return nil, notFound("room", m.RoomID)
	}
	if _, err := s.MsgColl.InsertOne(ctx, m); err != nil {
		return nil, classify(err, "append")
	}
	// 房间可能在插入前被删掉，撤回这条消息
	n, err := s.RoomColl.CountDocuments(ctx, bson.M{"_id": m.RoomID}, options.Count().SetLimit(1))
	if err != nil {
		return nil, classify(err, "append")
	}
	if n == 0 {
		if _, err := s.MsgColl.DeleteOne(ctx, bson.M{"_id": m.ID}); err != nil {
			return nil, classify(err, "append")
		}
		return nil, notFound("room", m.RoomID)
	}
	return m, nil
}

func (s *MongoStore) MarkAllRead(ctx context.Context, roomID, readerID string) (int64, error) {
	res, err := s.MsgColl.UpdateMany(ctx,
		bson.M{"room_id": roomID, "receiver_id": readerID, "is_read": false},
		bson.M{"$set": bson.M{"is_read": true}})
	if err != nil {
		return 0, classify(err, "mark read")
	}
	return res.ModifiedCount, nil
}

func (s *MongoStore) CountUnread(ctx context.Context, roomID, readerID string) (int64, error) {
	n, err := s.MsgColl.CountDocuments(ctx, bson.M{"room_id": roomID, "receiver_id": readerID, "is_read": false})
	if err != nil {
		return 0, classify(err, "count unread")
	}
	return n, nil
}

func (s *MongoStore) CountUnreadTotal(ctx context.Context, userID string) (int64, error) {
	n, err := s.MsgColl.CountDocuments(ctx, bson.M{"receiver_id": userID, "is_read": false})
	if err != nil {
		return 0, classify(err, "count unread total")
	}
	return n, nil
}

func (s *MongoStore) Page(ctx context.Context, roomID string, offset, limit int) ([]*model.Message, error) {
	if limit <= 0 {
		return []*model.Message{}, nil
	}
	if offset < 0 {
		offset = 0
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	return s.find(ctx, "page", roomID, opts)
}

func (s *MongoStore) AllOrdered(ctx context.Context, roomID string) ([]*model.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	return s.find(ctx, "history", roomID, opts)
}

func (s *MongoStore) find(ctx context.Context, op, roomID string, opts *options.FindOptions) ([]*model.Message, error) {
	cur, err := s.MsgColl.Find(ctx, bson.M{"room_id": roomID}, opts)
	if err != nil {
		return nil, classify(err, op)
	}
	out := make([]*model.Message, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, classify(err, op)
	}
	return out, nil
}
