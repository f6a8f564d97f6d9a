package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"crewdesk/internal/config"
	"crewdesk/internal/database"
	"crewdesk/internal/handlers"
	"crewdesk/internal/middleware"
	"crewdesk/internal/realtime"
	"crewdesk/internal/utils"
	"crewdesk/internal/websocket"

	"github.com/asynkron/protoactor-go/actor"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	middleware.Configure(cfg.JWTSecret)

	metrics := utils.NewMetricsCollector()
	broker := realtime.NewBroker()

	store, source, err := openStore(cfg, broker)
	if err != nil {
		log.Fatalf("Failed to initialize message store: %v", err)
	}
	defer store.Close(context.Background())

	if source != nil {
		go source.Run()
		defer source.Close()
	}

	// Actor system hosting the per-conversation session actors.
	system := actor.NewActorSystem()

	hub := websocket.NewHub()
	go hub.Run()

	server := handlers.NewServer(system, store, broker, hub, metrics, cfg)

	corsConfig := middleware.DefaultCORSConfig(cfg.AllowedOrigins)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", middleware.ApplyCORS(server.HandleHealth(), corsConfig))
	mux.HandleFunc("/ws", server.HandleWebSocket())
	mux.HandleFunc("/conversations", middleware.ApplyCORS(middleware.ApplyJWTMiddleware(server.HandleConversations()), corsConfig))
	mux.HandleFunc("/conversation", middleware.ApplyCORS(middleware.ApplyJWTMiddleware(server.HandleConversation()), corsConfig))
	mux.HandleFunc("/recipients", middleware.ApplyCORS(middleware.ApplyJWTMiddleware(server.HandleRecipients()), corsConfig))
	mux.HandleFunc("/messages", middleware.ApplyCORS(middleware.ApplyJWTMiddleware(server.HandleSendMessage()), corsConfig))
	mux.HandleFunc("/messages/read", middleware.ApplyCORS(middleware.ApplyJWTMiddleware(server.HandleMarkRead()), corsConfig))
	mux.HandleFunc("/messages/delete", middleware.ApplyCORS(middleware.ApplyJWTMiddleware(server.HandleDeleteMessage()), corsConfig))

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("Starting server on %s (database: %s)", serverAddr, cfg.Database.Type)
	if err := http.ListenAndServe(serverAddr, mux); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}

// eventSource feeds row inserts from the backing database into the broker.
type eventSource interface {
	Run()
	Close()
}

// openStore builds the message store selected by DB_TYPE together with
// its realtime insert source.
func openStore(cfg *config.Config, broker *realtime.Broker) (database.MessageStore, eventSource, error) {
	switch cfg.Database.Type {
	case "postgres":
		store, err := database.NewPostgresStore(cfg.Database.URI)
		if err != nil {
			return nil, nil, err
		}
		if err := store.InitializeSchema(context.Background()); err != nil {
			store.Close(context.Background())
			return nil, nil, err
		}
		source, err := realtime.NewPostgresSource(cfg.Database.URI, broker)
		if err != nil {
			store.Close(context.Background())
			return nil, nil, err
		}
		return store, source, nil

	case "mongo":
		store, err := database.NewMongoStore(cfg.Database.MongoURI, cfg.Database.MongoDatabase)
		if err != nil {
			return nil, nil, err
		}
		source, err := realtime.NewMongoSource(context.Background(), store.Messages, broker)
		if err != nil {
			// Change streams need a replica set. Without them the store
			// still works; live delivery degrades to silence.
			log.Printf("Change stream unavailable, realtime delivery disabled: %v", err)
			return store, nil, nil
		}
		return store, source, nil

	case "memory":
		store := database.NewMemoryStore()
		store.SetInsertHook(broker.Publish)
		return store, nil, nil

	default:
		return nil, nil, fmt.Errorf("unsupported database type %q", cfg.Database.Type)
	}
}
