package authz

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Client performs authorization checks.
type Client interface {
	Check(ctx context.Context, user, object, relation string) (bool, error)
}

// Relations and objects checked by the HTTP layer.
const (
	RelationStaff = "staff"
	RelationAdmin = "admin"
	AdminObject   = "platform:admin"
)

func ShopObject(shopID string) string { return "shop:" + shopID }

func UserPrincipal(uid string) string { return "user:" + uid }

// TupleKey is one OpenFGA relationship tuple.
type TupleKey struct {
	User     string `json:"user"`
	Relation string `json:"relation"`
	Object   string `json:"object"`
}

// OpenFGAClient implements Client against an OpenFGA HTTP API.
type OpenFGAClient struct {
	apiURL  string
	storeID string
	http    *http.Client
}

func NewOpenFGAClient(apiURL, storeID string) *OpenFGAClient {
	return &OpenFGAClient{
		apiURL:  apiURL,
		storeID: storeID,
		http:    &http.Client{Timeout: 3 * time.Second, Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
}

// Check calls OpenFGA /check. Returns (false, nil) on a definitive deny.
func (c *OpenFGAClient) Check(ctx context.Context, user, object, relation string) (bool, error) {
	var jr struct {
		Allowed bool `json:"allowed"`
	}
	body := map[string]any{"tuple_key": TupleKey{User: user, Relation: relation, Object: object}}
	if err := c.post(ctx, "check", body, &jr); err != nil {
		return false, err
	}
	return jr.Allowed, nil
}

// Write adds tuples to the store.
func (c *OpenFGAClient) Write(ctx context.Context, tuples []TupleKey) error {
	body := map[string]any{"writes": map[string]any{"tuple_keys": tuples}}
	return c.post(ctx, "write", body, nil)
}

func (c *OpenFGAClient) post(ctx context.Context, op string, body, out any) error {
	// POST {api}/stores/{store_id}/{op}
	url := fmt.Sprintf("%s/stores/%s/%s", c.apiURL, c.storeID, op)
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("openfga %s status %d", op, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// NoopClient allows everything. Useful for local dev without OpenFGA.
type NoopClient struct{}

func (n *NoopClient) Check(ctx context.Context, user, object, relation string) (bool, error) {
	return true, nil
}
