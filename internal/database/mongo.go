package database

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"crewdesk/internal/models"
	"crewdesk/internal/utils"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore implements MessageStore on MongoDB. It is the alternate
// backend; insert events come from a change stream instead of a trigger.
type MongoStore struct {
	Client   *mongo.Client
	Users    *mongo.Collection
	Messages *mongo.Collection
}

// MessageDocument is the MongoDB document shape for message rows. The
// realtime change-stream source decodes inserted documents into it.
type MessageDocument struct {
	ID          string    `bson:"_id"`
	SenderID    string    `bson:"senderId"`
	RecipientID string    `bson:"recipientId"`
	Body        string    `bson:"body"`
	Kind        string    `bson:"kind"`
	Read        bool      `bson:"read"`
	CreatedAt   time.Time `bson:"createdAt"`
}

// ToModel converts the document to the shared message model.
func (d MessageDocument) ToModel() (*models.Message, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid message id %q: %v", d.ID, err)
	}
	senderID, err := uuid.Parse(d.SenderID)
	if err != nil {
		return nil, fmt.Errorf("invalid sender id %q: %v", d.SenderID, err)
	}
	recipientID, err := uuid.Parse(d.RecipientID)
	if err != nil {
		return nil, fmt.Errorf("invalid recipient id %q: %v", d.RecipientID, err)
	}
	return &models.Message{
		ID:          id,
		SenderID:    senderID,
		RecipientID: recipientID,
		Body:        d.Body,
		Kind:        d.Kind,
		Read:        d.Read,
		CreatedAt:   d.CreatedAt,
	}, nil
}

type userDocument struct {
	ID        string  `bson:"_id"`
	FullName  string  `bson:"fullName"`
	Email     string  `bson:"email"`
	Role      string  `bson:"role"`
	AvatarURL *string `bson:"avatarUrl,omitempty"`
}

func (d userDocument) toModel() (*models.User, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid user id %q: %v", d.ID, err)
	}
	return &models.User{
		ID:        id,
		FullName:  d.FullName,
		Email:     d.Email,
		Role:      models.Role(d.Role),
		AvatarURL: d.AvatarURL,
	}, nil
}

// NewMongoStore connects to MongoDB and binds the collections.
func NewMongoStore(uri string, databaseName string) (*MongoStore, error) {
	serverAPI := options.ServerAPI(options.ServerAPIVersion1)
	opts := options.Client().ApplyURI(uri).SetServerAPIOptions(serverAPI)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %v", err)
	}

	// Ping the database to verify connection
	if err := client.Database("admin").RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %v", err)
	}

	log.Println("Successfully connected to MongoDB!")

	db := client.Database(databaseName)
	return &MongoStore{
		Client:   client,
		Users:    db.Collection("users"),
		Messages: db.Collection("messages"),
	}, nil
}

func (m *MongoStore) Close(ctx context.Context) error {
	return m.Client.Disconnect(ctx)
}

// --- Message Methods ---

func (m *MongoStore) decodeMessages(ctx context.Context, cursor *mongo.Cursor) ([]*models.Message, error) {
	defer cursor.Close(ctx)

	messages := []*models.Message{}
	for cursor.Next(ctx) {
		var doc MessageDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, utils.NewStoreError("failed to decode message", err)
		}
		msg, err := doc.ToModel()
		if err != nil {
			return nil, utils.NewStoreError("failed to decode message", err)
		}
		messages = append(messages, msg)
	}
	if err := cursor.Err(); err != nil {
		return nil, utils.NewStoreError("message cursor failed", err)
	}
	return messages, nil
}

// ListMessagesInvolving returns all messages sent or received by a user,
// newest first.
func (m *MongoStore) ListMessagesInvolving(ctx context.Context, userID uuid.UUID) ([]*models.Message, error) {
	filter := bson.M{
		"$or": []bson.M{
			{"senderId": userID.String()},
			{"recipientId": userID.String()},
		},
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})

	cursor, err := m.Messages.Find(ctx, filter, opts)
	if err != nil {
		return nil, utils.NewStoreError("failed to query messages for user", err)
	}
	return m.decodeMessages(ctx, cursor)
}

// ListThread returns the conversation between two users in chronological
// order.
func (m *MongoStore) ListThread(ctx context.Context, userID, partnerID uuid.UUID) ([]*models.Message, error) {
	filter := bson.M{
		"$or": []bson.M{
			{"senderId": userID.String(), "recipientId": partnerID.String()},
			{"senderId": partnerID.String(), "recipientId": userID.String()},
		},
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})

	cursor, err := m.Messages.Find(ctx, filter, opts)
	if err != nil {
		return nil, utils.NewStoreError("failed to query thread", err)
	}
	return m.decodeMessages(ctx, cursor)
}

// Send inserts a new unread message document.
func (m *MongoStore) Send(ctx context.Context, senderID, recipientID uuid.UUID, body string) (*models.Message, error) {
	if senderID == recipientID {
		return nil, utils.NewValidationError("sender and recipient must differ")
	}

	msg := &models.Message{
		ID:          uuid.New(),
		SenderID:    senderID,
		RecipientID: recipientID,
		Body:        body,
		Kind:        models.KindUserMessage,
		Read:        false,
		CreatedAt:   time.Now().UTC(),
	}

	doc := MessageDocument{
		ID:          msg.ID.String(),
		SenderID:    msg.SenderID.String(),
		RecipientID: msg.RecipientID.String(),
		Body:        msg.Body,
		Kind:        msg.Kind,
		Read:        msg.Read,
		CreatedAt:   msg.CreatedAt,
	}
	if _, err := m.Messages.InsertOne(ctx, doc); err != nil {
		return nil, utils.NewStoreError("failed to insert message", err)
	}
	return msg, nil
}

// MarkRead flips every unread message from senderID to recipientID.
func (m *MongoStore) MarkRead(ctx context.Context, recipientID, senderID uuid.UUID) error {
	filter := bson.M{
		"recipientId": recipientID.String(),
		"senderId":    senderID.String(),
		"read":        false,
	}
	_, err := m.Messages.UpdateMany(ctx, filter, bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		return utils.NewStoreError("failed to mark messages read", err)
	}
	return nil
}

// Delete removes a single message document.
func (m *MongoStore) Delete(ctx context.Context, messageID uuid.UUID) error {
	result, err := m.Messages.DeleteOne(ctx, bson.M{"_id": messageID.String()})
	if err != nil {
		return utils.NewStoreError("failed to delete message", err)
	}
	if result.DeletedCount == 0 {
		return utils.NewNotFoundError("message not found")
	}
	return nil
}

// GetMessage fetches one message by id.
func (m *MongoStore) GetMessage(ctx context.Context, messageID uuid.UUID) (*models.Message, error) {
	var doc MessageDocument
	err := m.Messages.FindOne(ctx, bson.M{"_id": messageID.String()}).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, utils.NewNotFoundError("message not found")
		}
		return nil, utils.NewStoreError("failed to query message by id", err)
	}
	return doc.ToModel()
}

// --- User Directory Methods ---

func (m *MongoStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var doc userDocument
	err := m.Users.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, utils.NewNotFoundError("user not found")
		}
		return nil, utils.NewStoreError("failed to query user by id", err)
	}
	return doc.toModel()
}

func (m *MongoStore) GetUsersByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.User, error) {
	users := []*models.User{}
	if len(ids) == 0 {
		return users, nil
	}

	idStrings := make([]string, len(ids))
	for i, id := range ids {
		idStrings[i] = id.String()
	}

	cursor, err := m.Users.Find(ctx, bson.M{"_id": bson.M{"$in": idStrings}})
	if err != nil {
		return nil, utils.NewStoreError("failed to query users by ids", err)
	}
	return m.decodeUsers(ctx, cursor)
}

func (m *MongoStore) ListUsers(ctx context.Context, filter UserFilter) ([]*models.User, error) {
	query := bson.M{}
	if len(filter.Roles) > 0 {
		roleStrings := make([]string, len(filter.Roles))
		for i, r := range filter.Roles {
			roleStrings[i] = string(r)
		}
		query["role"] = bson.M{"$in": roleStrings}
	}
	if filter.Exclude != uuid.Nil {
		query["_id"] = bson.M{"$ne": filter.Exclude.String()}
	}

	cursor, err := m.Users.Find(ctx, query)
	if err != nil {
		return nil, utils.NewStoreError("failed to query users", err)
	}
	users, err := m.decodeUsers(ctx, cursor)
	if err != nil {
		return nil, err
	}

	// Search narrowing is done in memory; the directory is small and this
	// keeps the filter semantics identical across backends.
	if filter.Search != "" {
		needle := strings.ToLower(filter.Search)
		matched := users[:0]
		for _, u := range users {
			if strings.Contains(strings.ToLower(u.FullName), needle) ||
				strings.Contains(strings.ToLower(u.Email), needle) {
				matched = append(matched, u)
			}
		}
		users = matched
	}

	sort.Slice(users, func(i, j int) bool { return users[i].FullName < users[j].FullName })
	return users, nil
}

func (m *MongoStore) decodeUsers(ctx context.Context, cursor *mongo.Cursor) ([]*models.User, error) {
	defer cursor.Close(ctx)

	users := []*models.User{}
	for cursor.Next(ctx) {
		var doc userDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, utils.NewStoreError("failed to decode user", err)
		}
		user, err := doc.toModel()
		if err != nil {
			return nil, utils.NewStoreError("failed to decode user", err)
		}
		users = append(users, user)
	}
	if err := cursor.Err(); err != nil {
		return nil, utils.NewStoreError("user cursor failed", err)
	}
	return users, nil
}
