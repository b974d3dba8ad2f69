package main

import (
	"context"
	"fmt"
	"log"

	firebase "firebase.google.com/go/v4"
	"github.com/restatedev/sdk-go/server"
	"go.uber.org/fx"
	"google.golang.org/api/option"

	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/api"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/authz"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/changefeed"
	appconfig "github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/config"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/dispatch"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/docstore"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/events"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/notify"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/order"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/payment"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/payout"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/shop"
	firestorestore "github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/storage/firestore"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/storage/memory"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/storage/postgres"
)

// newFirebaseApp returns nil when Firebase is not configured; push and ID
// token auth fall back accordingly.
func newFirebaseApp(cfg appconfig.Config, logger *log.Logger) (*firebase.App, error) {
	if !cfg.Firebase.Enabled() {
		logger.Println("Firebase not configured: notifications go to the log, dev headers only")
		return nil, nil
	}
	var opts []option.ClientOption
	if cfg.Firebase.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.Firebase.CredentialsFile))
	}
	var fbCfg *firebase.Config
	if cfg.Firebase.ProjectID != "" {
		fbCfg = &firebase.Config{ProjectID: cfg.Firebase.ProjectID}
	}
	app, err := firebase.NewApp(context.Background(), fbCfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("init firebase: %w", err)
	}
	return app, nil
}

func newStore(lc fx.Lifecycle, cfg appconfig.Config, logger *log.Logger, fb *firebase.App) (docstore.Store, error) {
	var (
		store docstore.Store
		err   error
	)
	switch cfg.Store.Backend {
	case appconfig.BackendPostgres:
		pg := cfg.Store.Postgres
		logger.Printf("Connecting to PostgreSQL database %s@%s:%d", pg.Database, pg.Host, pg.Port)
		store, err = postgres.Open(context.Background(), pg)
	case appconfig.BackendFirestore:
		if fb != nil {
			client, ferr := fb.Firestore(context.Background())
			if ferr != nil {
				return nil, fmt.Errorf("firestore client: %w", ferr)
			}
			store = firestorestore.New(client)
		} else {
			store, err = firestorestore.Open(context.Background(), cfg.Store.FirestoreProject)
		}
	default:
		logger.Println("WARNING: using the in-memory store; data is lost on restart")
		store = memory.New()
	}
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return store.Close() },
	})
	return store, nil
}

func newMessenger(fb *firebase.App, logger *log.Logger) (notify.Messenger, error) {
	if fb == nil {
		return notify.LogMessenger{Logger: logger}, nil
	}
	client, err := fb.Messaging(context.Background())
	if err != nil {
		return nil, fmt.Errorf("firebase messaging: %w", err)
	}
	return notify.NewFCMMessenger(client), nil
}

func newTokenVerifier(fb *firebase.App) (authz.TokenVerifier, error) {
	if fb == nil {
		return nil, nil
	}
	client, err := fb.Auth(context.Background())
	if err != nil {
		return nil, fmt.Errorf("firebase auth: %w", err)
	}
	return client, nil
}

func newGateway(cfg appconfig.Config, logger *log.Logger) payment.Gateway {
	if cfg.Gateway.KeyID == "" {
		logger.Println("WARNING: RAZORPAY_KEY_ID not set; using the sandbox gateway")
		if cfg.Gateway.KeySecret == "" {
			logger.Println("WARNING: RAZORPAY_KEY_SECRET not set; every callback will fail verification")
		}
		return payment.Sandbox{}
	}
	return payment.NewRazorpayClient(cfg.Gateway.BaseURL, cfg.Gateway.KeyID, cfg.Gateway.KeySecret, cfg.Gateway.Timeout)
}

func newAuthzClient(cfg appconfig.Config, store docstore.Store) authz.Client {
	switch cfg.Authz.Mode {
	case appconfig.AuthzOpenFGA:
		return authz.NewOpenFGAClient(cfg.Authz.OpenFGAURL, cfg.Authz.OpenFGAStoreID)
	case appconfig.AuthzNoop:
		return &authz.NoopClient{}
	default:
		return authz.NewStoreClient(store)
	}
}

// newKafkaProducer returns nil when no brokers are configured.
func newKafkaProducer(lc fx.Lifecycle, cfg appconfig.Config) *events.Producer {
	if !cfg.Kafka.Enabled() {
		return nil
	}
	prod := events.NewProducer(cfg.Kafka.Brokers)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return prod.Close()
		},
	})
	return prod
}

func newIntentMapper(cfg appconfig.Config, store docstore.Store, gateway payment.Gateway, orders *order.Repository, shops *shop.Directory) *payment.IntentMapper {
	return payment.NewIntentMapper(store, gateway, orders, shops, cfg.Gateway.Currency)
}

func newCallbackVerifier(cfg appconfig.Config, store docstore.Store, machine *order.Machine) *payment.CallbackVerifier {
	return payment.NewCallbackVerifier(store, machine, cfg.Gateway.KeySecret, cfg.HTTP.RedirectBase)
}

func newDispatcher(cfg appconfig.Config, store docstore.Store, shops *shop.Directory, messenger notify.Messenger, prod *events.Producer, logger *log.Logger) *dispatch.Dispatcher {
	d := dispatch.New(store, shops, messenger, payout.NewPlanner(logger), logger)
	if prod != nil {
		d = d.WithEvents(prod, cfg.Kafka.PaymentsTopic)
	}
	return d
}

// newChangeRelay publishes order changes to Kafka for cmd/dispatchworker
// when brokers are configured, and otherwise dispatches in-process.
func newChangeRelay(cfg appconfig.Config, store docstore.Store, prod *events.Producer, d *dispatch.Dispatcher, logger *log.Logger) *changefeed.Relay {
	if prod != nil {
		logger.Printf("Relaying order changes to Kafka topic %s", cfg.Kafka.ChangeTopic)
		return changefeed.NewRelay(store, logger, events.NewChangePublisher(prod, cfg.Kafka.ChangeTopic))
	}
	logger.Println("Dispatching order changes in-process")
	return changefeed.NewRelay(store, logger, d)
}

func newAPIDeps(cfg appconfig.Config, orders *order.Repository, machine *order.Machine, shops *shop.Directory, intents *payment.IntentMapper, callbacks *payment.CallbackVerifier, client authz.Client, verifier authz.TokenVerifier, logger *log.Logger) api.Deps {
	return api.Deps{
		Orders:          orders,
		Machine:         machine,
		Shops:           shops,
		Intents:         intents,
		Callbacks:       callbacks,
		Authz:           client,
		TokenVerifier:   verifier,
		AllowDevHeaders: cfg.HTTP.AllowDevHeaders,
		Logger:          logger,
	}
}

func newRestateServer(orders *order.Repository, machine *order.Machine) *server.Restate {
	return order.NewObject(orders, machine).Bind(server.NewRestate())
}
