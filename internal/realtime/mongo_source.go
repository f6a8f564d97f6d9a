package realtime

import (
	"context"
	"log"
	"sync"

	"crewdesk/internal/database"
	"crewdesk/internal/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// MongoSource feeds the broker from a change stream on the messages
// collection. Requires a replica set; on standalone deployments Watch
// fails and the caller degrades to no live updates.
type MongoSource struct {
	stream *mongo.ChangeStream
	broker *Broker
	cancel context.CancelFunc
	ctx    context.Context
	once   sync.Once
}

type changeEvent struct {
	FullDocument database.MessageDocument `bson:"fullDocument"`
}

// NewMongoSource opens an insert-only change stream on the collection.
func NewMongoSource(ctx context.Context, messages *mongo.Collection, broker *Broker) (*MongoSource, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.D{{Key: "operationType", Value: "insert"}}}},
	}
	streamCtx, cancel := context.WithCancel(ctx)
	stream, err := messages.Watch(streamCtx, pipeline)
	if err != nil {
		cancel()
		return nil, utils.NewSubscriptionError("failed to open message change stream", err)
	}
	return &MongoSource{
		stream: stream,
		broker: broker,
		cancel: cancel,
		ctx:    streamCtx,
	}, nil
}

// Run consumes change events until Close. Call it on its own goroutine.
// When the stream dies the source goes silent; there is no reconnect
// loop, consumers re-derive from the store on their next query.
func (s *MongoSource) Run() {
	log.Println("Mongo realtime source watching message inserts")
	defer s.stream.Close(context.Background())

	for s.stream.Next(s.ctx) {
		var event changeEvent
		if err := s.stream.Decode(&event); err != nil {
			log.Printf("Dropping undecodable change event: %v", err)
			continue
		}
		msg, err := event.FullDocument.ToModel()
		if err != nil {
			log.Printf("Dropping malformed inserted document: %v", err)
			continue
		}
		s.broker.Publish(*msg)
	}

	if err := s.stream.Err(); err != nil && s.ctx.Err() == nil {
		log.Printf("Mongo change stream ended: %v", err)
	}
}

// Close stops the stream. Safe to call more than once.
func (s *MongoSource) Close() {
	s.once.Do(s.cancel)
}
