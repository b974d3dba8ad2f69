// Command dispatchworker consumes relayed order changes from Kafka and runs
// the notification dispatcher on them. It is the out-of-process alternative
// to the server's in-process dispatch.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	firebase "firebase.google.com/go/v4"
	"github.com/joho/godotenv"
	"github.com/segmentio/kafka-go"
	"google.golang.org/api/option"

	appconfig "github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/config"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/dispatch"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/docstore"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/events"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/notify"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/payout"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/secrets"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/shop"
	firestorestore "github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/storage/firestore"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/storage/postgres"
)

func main() {
	_ = godotenv.Load()
	logger := log.New(os.Stdout, "[dispatch-worker] ", log.LstdFlags|log.Lmicroseconds)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := secrets.BootstrapFromOpenBao(ctx); err != nil {
		logger.Printf("WARNING: OpenBao bootstrap failed: %v", err)
	}
	cfg, err := appconfig.Load()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatalf("%v", err)
	}
	logger.Println("stopped")
}

func run(ctx context.Context, cfg appconfig.Config, logger *log.Logger) error {
	if !cfg.Kafka.Enabled() {
		return fmt.Errorf("KAFKA_BROKERS is required")
	}
	store, messenger, err := openBackends(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	var prod *events.Producer
	d := dispatch.New(store, shop.NewDirectory(store), messenger, payout.NewPlanner(logger), logger)
	if cfg.Kafka.PaymentsTopic != "" {
		prod = events.NewProducer(cfg.Kafka.Brokers)
		defer prod.Close()
		d = d.WithEvents(prod, cfg.Kafka.PaymentsTopic)
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Kafka.Brokers,
		Topic:    cfg.Kafka.ChangeTopic,
		GroupID:  cfg.Kafka.DispatchGroup, // its own consumer group
		MinBytes: 1e3, MaxBytes: 10e6,
	})
	defer reader.Close()

	logger.Printf("consuming %s (group=%s)", cfg.Kafka.ChangeTopic, cfg.Kafka.DispatchGroup)
	return events.Consume(ctx, reader, cfg.Kafka.ChangeTopic, logger, func(ctx context.Context, evt events.Envelope) error {
		if evt.EventType != events.TypeOrderChanged {
			return nil
		}
		change, err := events.DecodeChange(evt)
		if err != nil {
			// Malformed changes can never succeed; skip them.
			logger.Printf("dropping %s: %v", evt.AggregateID, err)
			return nil
		}
		return d.HandleChange(ctx, change)
	})
}

// openBackends connects to the shared store. The memory backend is refused:
// the worker would never see the server's writes.
func openBackends(ctx context.Context, cfg appconfig.Config, logger *log.Logger) (docstore.Store, notify.Messenger, error) {
	var app *firebase.App
	if cfg.Firebase.Enabled() {
		var opts []option.ClientOption
		if cfg.Firebase.CredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.Firebase.CredentialsFile))
		}
		var fbCfg *firebase.Config
		if cfg.Firebase.ProjectID != "" {
			fbCfg = &firebase.Config{ProjectID: cfg.Firebase.ProjectID}
		}
		var err error
		if app, err = firebase.NewApp(ctx, fbCfg, opts...); err != nil {
			return nil, nil, fmt.Errorf("init firebase: %w", err)
		}
	}

	var messenger notify.Messenger = notify.LogMessenger{Logger: logger}
	if app != nil {
		client, err := app.Messaging(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("firebase messaging: %w", err)
		}
		messenger = notify.NewFCMMessenger(client)
	}

	switch cfg.Store.Backend {
	case appconfig.BackendPostgres:
		store, err := postgres.Open(ctx, cfg.Store.Postgres)
		if err != nil {
			return nil, nil, err
		}
		return store, messenger, nil
	case appconfig.BackendFirestore:
		store, err := firestorestore.Open(ctx, cfg.Store.FirestoreProject)
		if err != nil {
			return nil, nil, err
		}
		return store, messenger, nil
	default:
		return nil, nil, fmt.Errorf("STORE_BACKEND=%s cannot be shared with the server; use postgres or firestore", cfg.Store.Backend)
	}
}
