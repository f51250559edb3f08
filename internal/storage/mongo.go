package storage

import (
	"context"
	"errors"
	"fmt"
	"protalent/backend/internal/models"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	mongoOptions "go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const (
	chatsCollection    = "chats"
	messagesCollection = "messages"
)

type chatDoc struct {
	ID          primitive.ObjectID  `bson:"_id,omitempty"`
	Users       []string            `bson:"users"`
	Key         string              `bson:"pairKey"`
	LastMessage *models.LastMessage `bson:"lastMessage"`
	CreatedAt   time.Time           `bson:"createdAt"`
	UpdatedAt   time.Time           `bson:"updatedAt"`
}

func (d *chatDoc) toModel() *models.Chat {
	return &models.Chat{
		ID:          d.ID.Hex(),
		Users:       d.Users,
		Key:         d.Key,
		LastMessage: d.LastMessage,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

type messageDoc struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	ChatID    primitive.ObjectID `bson:"chatId"`
	Sender    string             `bson:"sender"`
	Receiver  string             `bson:"receiver"`
	Text      string             `bson:"text"`
	Read      bool               `bson:"read"`
	Timestamp time.Time          `bson:"timestamp"`
}

func (d *messageDoc) toModel() models.Message {
	return models.Message{
		ID:        d.ID.Hex(),
		ChatID:    d.ChatID.Hex(),
		Sender:    d.Sender,
		Receiver:  d.Receiver,
		Text:      d.Text,
		Read:      d.Read,
		Timestamp: d.Timestamp,
	}
}

// MongoStore keeps chats and messages in the "chats" and "messages" collections.
type MongoStore struct {
	client   *mongo.Client
	chats    *mongo.Collection
	messages *mongo.Collection
	logger   *zap.SugaredLogger
	opts     options
}

// NewMongoStore connects to uri, checks the connection and returns a store on database dbName.
func NewMongoStore(ctx context.Context, logger *zap.SugaredLogger, uri, dbName string, opts ...Option) (*MongoStore, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt.apply(&o)
	}

	client, err := mongo.Connect(ctx, mongoOptions.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := o.withTimeout(ctx)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(dbName)
	logger.Infow("connected to mongo", "database", dbName)

	return &MongoStore{
		client:   client,
		chats:    db.Collection(chatsCollection),
		messages: db.Collection(messagesCollection),
		logger:   logger,
		opts:     o,
	}, nil
}

// EnsureIndexes creates the pair uniqueness index and the lookup indexes used by queries.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()

	_, err := s.chats.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "pairKey", Value: 1}},
			Options: mongoOptions.Index().
				SetName("pairKey_unique").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"pairKey": bson.M{"$exists": true}}),
		},
		{Keys: bson.D{{Key: "users", Value: 1}}},
		{Keys: bson.D{{Key: "updatedAt", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("create chat indexes: %w", err)
	}

	_, err = s.messages.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "chatId", Value: 1}, {Key: "timestamp", Value: 1}}},
		{Keys: bson.D{{Key: "receiver", Value: 1}, {Key: "read", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create message indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) FindChatByParticipants(ctx context.Context, a, b string) (*models.Chat, error) {
	if err := validatePair(a, b); err != nil {
		return nil, err
	}
	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()

	var doc chatDoc
	err := s.chats.FindOne(ctx, bson.M{"pairKey": models.ParticipantsKey(a, b)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrChatNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc.toModel(), nil
}

func (s *MongoStore) CreateChat(ctx context.Context, a, b string, last *models.LastMessage) (*models.Chat, error) {
	return s.upsertChat(ctx, a, b, last, false)
}

func (s *MongoStore) UpsertChatSnapshot(ctx context.Context, a, b string, last models.LastMessage) (*models.Chat, error) {
	return s.upsertChat(ctx, a, b, &last, true)
}

// upsertChat relies on the unique pairKey index: of two racing upserts one
// inserts and the other fails with a duplicate key, which is retried once
// and then matches the inserted document.
func (s *MongoStore) upsertChat(ctx context.Context, a, b string, last *models.LastMessage, overwrite bool) (*models.Chat, error) {
	if err := validatePair(a, b); err != nil {
		return nil, err
	}
	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()

	key := models.ParticipantsKey(a, b)
	now := time.Now().UTC()

	onInsert := bson.M{
		"users":     []string{a, b},
		"pairKey":   key,
		"createdAt": now,
	}
	update := bson.M{"$setOnInsert": onInsert}
	if overwrite {
		update["$set"] = bson.M{"lastMessage": last, "updatedAt": now}
	} else {
		onInsert["lastMessage"] = last
		onInsert["updatedAt"] = now
	}

	opts := mongoOptions.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(mongoOptions.After)

	var doc chatDoc
	for attempt := 0; ; attempt++ {
		err := s.chats.FindOneAndUpdate(ctx, bson.M{"pairKey": key}, update, opts).Decode(&doc)
		if err == nil {
			return doc.toModel(), nil
		}
		if mongo.IsDuplicateKeyError(err) && attempt == 0 {
			s.logger.Debugw("chat upsert raced, retrying", "pairKey", key)
			continue
		}
		return nil, err
	}
}

func (s *MongoStore) UpdateChatSnapshot(ctx context.Context, chatID string, last models.LastMessage) error {
	oid, err := primitive.ObjectIDFromHex(chatID)
	if err != nil {
		return ErrChatNotFound
	}
	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()

	res, err := s.chats.UpdateByID(ctx, oid, bson.M{"$set": bson.M{
		"lastMessage": last,
		"updatedAt":   time.Now().UTC(),
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrChatNotFound
	}
	return nil
}

func (s *MongoStore) GetChat(ctx context.Context, chatID string) (*models.Chat, error) {
	oid, err := primitive.ObjectIDFromHex(chatID)
	if err != nil {
		return nil, ErrChatNotFound
	}
	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()

	var doc chatDoc
	err = s.chats.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrChatNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc.toModel(), nil
}

func (s *MongoStore) ListChats(ctx context.Context, userID string) ([]models.Chat, error) {
	return s.findChats(ctx, bson.M{"users": userID})
}

func (s *MongoStore) SearchChats(ctx context.Context, userID, participant string) ([]models.Chat, error) {
	return s.findChats(ctx, bson.M{"users": bson.M{"$all": []string{userID, participant}}})
}

func (s *MongoStore) findChats(ctx context.Context, filter bson.M) ([]models.Chat, error) {
	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()

	cur, err := s.chats.Find(ctx, filter, mongoOptions.Find().
		SetSort(bson.D{{Key: "updatedAt", Value: -1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	chats := make([]models.Chat, 0)
	for cur.Next(ctx) {
		var doc chatDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		chats = append(chats, *doc.toModel())
	}
	return chats, cur.Err()
}

// DeleteChat removes the messages before the chat so a partial failure never
// leaves messages without their chat. Messages are swept once more after the
// chat is gone to catch inserts that passed their existence check meanwhile;
// any later insert sees the chat missing and removes itself.
func (s *MongoStore) DeleteChat(ctx context.Context, chatID, caller string) error {
	chat, err := s.GetChat(ctx, chatID)
	if err != nil {
		return err
	}
	if !chat.HasParticipant(caller) {
		return ErrNotParticipant
	}

	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()

	oid, _ := primitive.ObjectIDFromHex(chatID)
	deleted, err := s.messages.DeleteMany(ctx, bson.M{"chatId": oid})
	if err != nil {
		return fmt.Errorf("delete chat messages: %w", err)
	}
	if _, err := s.chats.DeleteOne(ctx, bson.M{"_id": oid}); err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	late, err := s.messages.DeleteMany(ctx, bson.M{"chatId": oid})
	if err != nil {
		return fmt.Errorf("sweep chat messages: %w", err)
	}

	s.logger.Debugw("chat deleted", "chatId", chatID, "messages", deleted.DeletedCount+late.DeletedCount)
	return nil
}

func (s *MongoStore) InsertMessage(ctx context.Context, chatID, sender, receiver, text string) (*models.Message, error) {
	oid, err := primitive.ObjectIDFromHex(chatID)
	if err != nil {
		return nil, ErrChatNotFound
	}
	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()

	n, err := s.chats.CountDocuments(ctx, bson.M{"_id": oid}, mongoOptions.Count().SetLimit(1))
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrChatNotFound
	}

	doc := messageDoc{
		ChatID:    oid,
		Sender:    sender,
		Receiver:  receiver,
		Text:      text,
		Timestamp: time.Now().UTC(),
	}
	res, err := s.messages.InsertOne(ctx, doc)
	if err != nil {
		return nil, err
	}
	doc.ID = res.InsertedID.(primitive.ObjectID)

	// The chat may have been deleted between the check and the insert.
	n, err = s.chats.CountDocuments(ctx, bson.M{"_id": oid}, mongoOptions.Count().SetLimit(1))
	if err != nil {
		return nil, err
	}
	if n == 0 {
		if _, err := s.messages.DeleteOne(ctx, bson.M{"_id": doc.ID}); err != nil {
			s.logger.Warnw("remove message of deleted chat", "chatId", chatID, "messageId", doc.ID.Hex(), "error", err)
		}
		return nil, ErrChatNotFound
	}

	msg := doc.toModel()
	return &msg, nil
}

func (s *MongoStore) ListMessages(ctx context.Context, chatID string, limit, skip int64) ([]models.Message, error) {
	oid, err := primitive.ObjectIDFromHex(chatID)
	if err != nil {
		return []models.Message{}, nil
	}
	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()

	opts := mongoOptions.Find().
		SetSort(bson.D{{Key: "timestamp", Value: 1}, {Key: "_id", Value: 1}}).
		SetSkip(skip)
	if limit > 0 {
		opts.SetLimit(limit)
	}

	cur, err := s.messages.Find(ctx, bson.M{"chatId": oid}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	msgs := make([]models.Message, 0)
	for cur.Next(ctx) {
		var doc messageDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		msgs = append(msgs, doc.toModel())
	}
	return msgs, cur.Err()
}

func (s *MongoStore) MarkRead(ctx context.Context, chatID, receiver string) (int64, error) {
	oid, err := primitive.ObjectIDFromHex(chatID)
	if err != nil {
		return 0, nil
	}
	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()

	res, err := s.messages.UpdateMany(ctx,
		bson.M{"chatId": oid, "receiver": receiver, "read": false},
		bson.M{"$set": bson.M{"read": true}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (s *MongoStore) DeleteMessage(ctx context.Context, chatID, messageID, caller string) error {
	cid, err := primitive.ObjectIDFromHex(chatID)
	if err != nil {
		return ErrMessageNotFound
	}
	mid, err := primitive.ObjectIDFromHex(messageID)
	if err != nil {
		return ErrMessageNotFound
	}
	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()

	var doc messageDoc
	err = s.messages.FindOne(ctx, bson.M{"_id": mid, "chatId": cid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrMessageNotFound
	}
	if err != nil {
		return err
	}
	if doc.Sender != caller {
		return ErrNotSender
	}

	_, err = s.messages.DeleteOne(ctx, bson.M{"_id": mid})
	return err
}

func (s *MongoStore) CountUnreadByChat(ctx context.Context, receiver string) ([]models.UnreadCount, error) {
	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"receiver": receiver, "read": false}}},
		{{Key: "$group", Value: bson.M{"_id": "$chatId", "unread": bson.M{"$sum": 1}}}},
		{{Key: "$sort", Value: bson.M{"_id": 1}}},
	}
	cur, err := s.messages.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	counts := make([]models.UnreadCount, 0)
	for cur.Next(ctx) {
		var row struct {
			ChatID primitive.ObjectID `bson:"_id"`
			Unread int64              `bson:"unread"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		counts = append(counts, models.UnreadCount{ChatID: row.ChatID.Hex(), Unread: row.Unread})
	}
	return counts, cur.Err()
}

func (s *MongoStore) Ping(ctx context.Context) error {
	ctx, cancel := s.opts.withTimeout(ctx)
	defer cancel()
	return s.client.Ping(ctx, nil)
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
