package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ukydev/fleet-dashboard/internal/models"
	"github.com/ukydev/fleet-dashboard/internal/session"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SessionsCollection is the collection the session document lives in.
const SessionsCollection = "sessions"

// ConnectMongo connects to MongoDB at uri and verifies the connection.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	if uri == "" {
		return nil, fmt.Errorf("mongo uri is empty")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo.Connect error: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	// Ping to verify connection
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo.Ping error: %w", err)
	}
	return client, nil
}

// SessionCollection is the subset of *mongo.Collection the session store uses.
type SessionCollection interface {
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	ReplaceOne(ctx context.Context, filter interface{}, replacement interface{}, opts ...*options.ReplaceOptions) (*mongo.UpdateResult, error)
	DeleteOne(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
}

type sessionDocument struct {
	ID             string `bson:"_id"`
	models.Session `bson:",inline"`
	UpdatedAt      time.Time `bson:"updated_at"`
}

// MongoSessionStore keeps the signed-in profile as a single document keyed by
// session.Key.
type MongoSessionStore struct {
	Collection SessionCollection
	now        func() time.Time
}

// NewMongoSessionStore returns a store over db's sessions collection.
func NewMongoSessionStore(db *mongo.Database) *MongoSessionStore {
	return &MongoSessionStore{Collection: db.Collection(SessionsCollection), now: time.Now}
}

func keyFilter() bson.M {
	return bson.M{"_id": session.Key}
}

// Load returns the stored session, or nil when none is stored.
func (s *MongoSessionStore) Load(ctx context.Context) (*models.Session, error) {
	if s.Collection == nil {
		return nil, fmt.Errorf("mongo collection is nil")
	}
	var doc sessionDocument
	err := s.Collection.FindOne(ctx, keyFilter()).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	sess := doc.Session
	return &sess, nil
}

// Save upserts the session document.
func (s *MongoSessionStore) Save(ctx context.Context, sess models.Session) error {
	if s.Collection == nil {
		return fmt.Errorf("mongo collection is nil")
	}
	now := time.Now
	if s.now != nil {
		now = s.now
	}
	doc := sessionDocument{ID: session.Key, Session: sess, UpdatedAt: now().UTC()}
	_, err := s.Collection.ReplaceOne(ctx, keyFilter(), doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Clear deletes the session document. Clearing an empty store is not an error.
func (s *MongoSessionStore) Clear(ctx context.Context) error {
	if s.Collection == nil {
		return fmt.Errorf("mongo collection is nil")
	}
	if _, err := s.Collection.DeleteOne(ctx, keyFilter()); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}
