package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	postgres "github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/storage/postgres"
)

// Store backends.
const (
	BackendMemory    = "memory"
	BackendPostgres  = "postgres"
	BackendFirestore = "firestore"
)

// Authz modes.
const (
	AuthzNoop    = "noop"
	AuthzStore   = "store"
	AuthzOpenFGA = "openfga"
)

// Config aggregates runtime configuration grouped by concern.
type Config struct {
	ServiceName string
	HTTP        HTTPConfig
	Restate     RestateConfig
	Store       StoreConfig
	Kafka       KafkaConfig
	Gateway     GatewayConfig
	Firebase    FirebaseConfig
	Authz       AuthzConfig
}

type HTTPConfig struct {
	Addr string
	// RedirectBase is where the customer lands after a verified callback.
	RedirectBase    string
	AllowDevHeaders bool
}

type RestateConfig struct {
	Enabled    bool
	ListenAddr string
}

type StoreConfig struct {
	Backend          string
	Postgres         postgres.DatabaseConfig
	FirestoreProject string
}

// KafkaConfig is disabled when Brokers is empty.
type KafkaConfig struct {
	Brokers       []string
	ChangeTopic   string
	PaymentsTopic string
	DispatchGroup string
}

func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

// GatewayConfig selects the sandbox gateway when KeyID is empty.
type GatewayConfig struct {
	KeyID     string
	KeySecret string
	BaseURL   string
	Currency  string
	Timeout   time.Duration
}

type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

func (f FirebaseConfig) Enabled() bool { return f.ProjectID != "" || f.CredentialsFile != "" }

type AuthzConfig struct {
	Mode           string
	OpenFGAURL     string
	OpenFGAStoreID string
}

// Load reads configuration from environment variables, applying sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		ServiceName: getEnv("SERVICE_NAME", "restaurant-ordering"),
		HTTP: HTTPConfig{
			Addr:         getEnv("HTTP_LISTEN_ADDR", ":3000"),
			RedirectBase: getEnv("PUBLIC_REDIRECT_BASE", "http://localhost:5173/order-success"),
		},
		Restate: RestateConfig{
			ListenAddr: getEnv("RESTATE_LISTEN_ADDR", ":9081"),
		},
		Store: StoreConfig{
			Backend:          strings.ToLower(getEnv("STORE_BACKEND", BackendMemory)),
			FirestoreProject: getEnv("FIRESTORE_PROJECT_ID", os.Getenv("FIREBASE_PROJECT_ID")),
		},
		Kafka: KafkaConfig{
			Brokers:       splitAndTrim(getEnv("KAFKA_BROKERS", "")),
			ChangeTopic:   getEnv("KAFKA_ORDER_CHANGES_TOPIC", "order-changes.v1"),
			PaymentsTopic: getEnv("KAFKA_PAYMENTS_TOPIC", "payments.v1"),
			DispatchGroup: getEnv("KAFKA_DISPATCH_GROUP_ID", "dispatch-workers"),
		},
		Gateway: GatewayConfig{
			KeyID:     getEnv("RAZORPAY_KEY_ID", ""),
			KeySecret: getEnv("RAZORPAY_KEY_SECRET", ""),
			BaseURL:   getEnv("RAZORPAY_API_BASE", "https://api.razorpay.com"),
			Currency:  strings.ToUpper(getEnv("GATEWAY_CURRENCY", "INR")),
		},
		Firebase: FirebaseConfig{
			ProjectID:       getEnv("FIREBASE_PROJECT_ID", ""),
			CredentialsFile: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
		},
		Authz: AuthzConfig{
			Mode:           strings.ToLower(getEnv("AUTHZ_MODE", AuthzStore)),
			OpenFGAURL:     getEnv("OPENFGA_API_URL", ""),
			OpenFGAStoreID: getEnv("OPENFGA_STORE_ID", ""),
		},
	}

	var err error
	if cfg.Restate.Enabled, err = parseBool("RESTATE_ENABLED", "true"); err != nil {
		return Config{}, err
	}
	if cfg.HTTP.AllowDevHeaders, err = parseBool("AUTH_ALLOW_DEV_HEADERS", "false"); err != nil {
		return Config{}, err
	}

	timeout, err := time.ParseDuration(getEnv("GATEWAY_TIMEOUT", "10s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse GATEWAY_TIMEOUT: %w", err)
	}
	cfg.Gateway.Timeout = timeout

	portStr := getEnv("ORDER_DB_PORT", "5432")
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Config{}, fmt.Errorf("parse ORDER_DB_PORT: %w", err)
	}

	cfg.Store.Postgres = postgres.DatabaseConfig{
		Host:     getEnv("ORDER_DB_HOST", "localhost"),
		Port:     port,
		Database: getEnv("ORDER_DB_NAME", "restaurantordering"),
		User:     getEnv("ORDER_DB_USER", "restaurantadmin"),
		Password: getEnv("ORDER_DB_PASSWORD", ""),
		SSLMode:  getEnv("PGSSLMODE", "disable"),
	}

	switch cfg.Store.Backend {
	case BackendMemory, BackendPostgres:
	case BackendFirestore:
		if cfg.Store.FirestoreProject == "" {
			return Config{}, fmt.Errorf("STORE_BACKEND=firestore requires FIRESTORE_PROJECT_ID")
		}
	default:
		return Config{}, fmt.Errorf("unknown STORE_BACKEND %q", cfg.Store.Backend)
	}

	switch cfg.Authz.Mode {
	case AuthzNoop, AuthzStore:
	case AuthzOpenFGA:
		if cfg.Authz.OpenFGAURL == "" || cfg.Authz.OpenFGAStoreID == "" {
			return Config{}, fmt.Errorf("AUTHZ_MODE=openfga requires OPENFGA_API_URL and OPENFGA_STORE_ID")
		}
	default:
		return Config{}, fmt.Errorf("unknown AUTHZ_MODE %q", cfg.Authz.Mode)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func parseBool(key, fallback string) (bool, error) {
	v, err := strconv.ParseBool(getEnv(key, fallback))
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}
	return v, nil
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
