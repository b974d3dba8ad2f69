package bdd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/cucumber/godog"

	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/api"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/authz"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/changefeed"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/dispatch"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/docstore"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/notify"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/order"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/payment"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/payout"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/shop"
	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/storage/memory"
)

const (
	gatewaySecret = "bdd-secret"
	redirectBase  = "https://app.example/order-success"
	ownerUID      = "owner"
	probePath     = "shops/_probe/orders/ready"
)

// PipelineWorld is one scenario's platform: memory store, HTTP API and the
// in-process dispatcher fed by the change relay.
type PipelineWorld struct {
	t *testing.T

	store     *memory.Store
	orders    *order.Repository
	machine   *order.Machine
	shops     *shop.Directory
	gateway   *scriptedGateway
	messenger *recordingMessenger
	srv       *httptest.Server
	stop      context.CancelFunc
	relayDone chan struct{}

	// Scenario state.
	orderIDs   map[string]string
	intentID   string
	httpStatus int
	httpJSON   map[string]any
	lastErr    error
}

func NewPipelineWorld(t *testing.T) *PipelineWorld {
	return &PipelineWorld{t: t}
}

func (w *PipelineWorld) Register(sc *godog.ScenarioContext) {
	sc.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		return ctx, w.start()
	})
	sc.After(func(ctx context.Context, _ *godog.Scenario, _ error) (context.Context, error) {
		w.shutdown()
		return ctx, nil
	})

	w.registerShopSteps(sc)
	w.registerPaymentSteps(sc)
	w.registerOrderSteps(sc)
}

func (w *PipelineWorld) start() error {
	logger := log.New(io.Discard, "", 0)
	if os.Getenv("BDD_DEBUG") != "" {
		logger = log.New(os.Stderr, "[bdd] ", log.Lmicroseconds)
	}

	w.store = memory.New()
	w.orders = order.NewRepository(w.store)
	w.machine = order.NewMachine(w.store)
	w.shops = shop.NewDirectory(w.store)
	w.gateway = &scriptedGateway{}
	w.messenger = &recordingMessenger{}
	w.orderIDs = make(map[string]string)
	w.intentID = ""
	w.httpStatus = 0
	w.httpJSON = nil
	w.lastErr = nil

	w.srv = httptest.NewServer(api.NewHandler(api.Deps{
		Orders:          w.orders,
		Machine:         w.machine,
		Shops:           w.shops,
		Intents:         payment.NewIntentMapper(w.store, w.gateway, w.orders, w.shops, "INR"),
		Callbacks:       payment.NewCallbackVerifier(w.store, w.machine, gatewaySecret, redirectBase),
		Authz:           authz.NewStoreClient(w.store),
		AllowDevHeaders: true,
		Logger:          logger,
	}))

	// The relay registers its watch asynchronously; a probe order tells us
	// when it is listening.
	ready := make(chan struct{})
	var once sync.Once
	probe := changefeed.HandlerFunc(func(_ context.Context, c docstore.Change) error {
		if c.Path == probePath {
			once.Do(func() { close(ready) })
		}
		return nil
	})
	d := dispatch.New(w.store, w.shops, w.messenger, payout.NewPlanner(logger), logger)
	relay := changefeed.NewRelay(w.store, logger, d, probe)

	ctx, cancel := context.WithCancel(context.Background())
	w.stop = cancel
	w.relayDone = make(chan struct{})
	go func() {
		defer close(w.relayDone)
		_ = relay.Run(ctx)
	}()

	deadline := time.After(2 * time.Second)
	for i := 0; ; i++ {
		err := w.store.Commit(context.Background(), docstore.Merge(probePath, docstore.Fields{"paymentStatus": "Pending", "n": i}))
		if err != nil {
			return fmt.Errorf("probe write: %w", err)
		}
		select {
		case <-ready:
			return nil
		case <-time.After(10 * time.Millisecond):
		case <-deadline:
			return fmt.Errorf("change relay did not start")
		}
	}
}

func (w *PipelineWorld) shutdown() {
	if w.srv != nil {
		w.srv.Close()
	}
	if w.stop != nil {
		w.stop()
		<-w.relayDone
	}
}

// call sends a JSON request as the given user ("" for an anonymous customer)
// and records the response.
func (w *PipelineWorld) call(method, path, user string, body any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, w.srv.URL+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-User", user)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	w.httpStatus = resp.StatusCode
	w.httpJSON = nil
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &w.httpJSON); err != nil {
			return fmt.Errorf("decode %s %s response %q: %w", method, path, raw, err)
		}
	}
	return nil
}

func (w *PipelineWorld) orderID(alias string) (string, error) {
	id, ok := w.orderIDs[alias]
	if !ok {
		return "", fmt.Errorf("order %q was never placed", alias)
	}
	return id, nil
}

// eventually polls cond until it returns nil or the dispatch window closes.
func eventually(cond func() error) error {
	deadline := time.Now().Add(2 * time.Second)
	for {
		err := cond()
		if err == nil || time.Now().After(deadline) {
			return err
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// settle waits long enough for any stray dispatch to land before asserting
// that something did not happen.
func settle() { time.Sleep(150 * time.Millisecond) }

type scriptedGateway struct {
	fixedID string
}

func (g *scriptedGateway) CreateOrder(ctx context.Context, req payment.OrderRequest) (payment.GatewayOrder, error) {
	if g.fixedID != "" {
		return payment.GatewayOrder{ID: g.fixedID, Amount: req.Amount, Currency: req.Currency, Status: "created"}, nil
	}
	return payment.Sandbox{}.CreateOrder(ctx, req)
}

type recordingMessenger struct {
	mu   sync.Mutex
	sent []notify.Message
}

func (m *recordingMessenger) Multicast(_ context.Context, tokens []string, msg notify.Message) (notify.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return notify.Result{SuccessCount: len(tokens)}, nil
}

func (m *recordingMessenger) count(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, msg := range m.sent {
		if msg.Data["type"] == kind {
			n++
		}
	}
	return n
}
