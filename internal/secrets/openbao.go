// Package secrets copies gateway keys and database passwords from an
// OpenBao KV v2 secret into the environment before configuration loads.
package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var ErrOpenBaoSecretNotFound = errors.New("openbao secret path not found")

// BootstrapFromOpenBao exports every key of the configured secret as an
// environment variable and reports how many it set. Variables already present
// in the environment win. Without OPENBAO_ADDR, OPENBAO_TOKEN and
// OPENBAO_SECRET_PATH it does nothing.
func BootstrapFromOpenBao(ctx context.Context) (int, error) {
	cfg, ok := openBaoConfigFromEnv()
	if !ok {
		return 0, nil
	}
	values, err := readSecrets(ctx, cfg, &http.Client{Timeout: 5 * time.Second, Transport: otelhttp.NewTransport(http.DefaultTransport)})
	if err != nil {
		return 0, err
	}
	set := 0
	for k, v := range values {
		if _, exists := os.LookupEnv(k); exists {
			continue
		}
		if err := os.Setenv(k, v); err != nil {
			return set, fmt.Errorf("export %s: %w", k, err)
		}
		set++
	}
	return set, nil
}

type openBaoConfig struct {
	addr      string
	token     string
	mountPath string
	secretKey string
	namespace string
}

func openBaoConfigFromEnv() (openBaoConfig, bool) {
	cfg := openBaoConfig{
		addr:      strings.TrimRight(strings.TrimSpace(os.Getenv("OPENBAO_ADDR")), "/"),
		token:     os.Getenv("OPENBAO_TOKEN"),
		secretKey: strings.Trim(strings.TrimSpace(os.Getenv("OPENBAO_SECRET_PATH")), "/"),
		mountPath: strings.Trim(strings.TrimSpace(os.Getenv("OPENBAO_MOUNT")), "/"),
		namespace: strings.TrimSpace(os.Getenv("OPENBAO_NAMESPACE")),
	}
	if cfg.addr == "" || cfg.token == "" || cfg.secretKey == "" {
		return openBaoConfig{}, false
	}
	if cfg.mountPath == "" {
		cfg.mountPath = "secret"
	}
	return cfg, true
}

func readSecrets(ctx context.Context, cfg openBaoConfig, client *http.Client) (map[string]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/v1/%s/data/%s", cfg.addr, cfg.mountPath, cfg.secretKey), nil)
	if err != nil {
		return nil, fmt.Errorf("create OpenBao request: %w", err)
	}
	req.Header.Set("X-Vault-Token", cfg.token)
	if cfg.namespace != "" {
		req.Header.Set("X-Vault-Namespace", cfg.namespace)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call OpenBao: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrOpenBaoSecretNotFound
	default:
		return nil, fmt.Errorf("openbao request failed: status=%d", resp.StatusCode)
	}

	var payload struct {
		Data struct {
			Data map[string]any `json:"data"`
		} `json:"data"`
	}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode OpenBao response: %w", err)
	}

	out := make(map[string]string, len(payload.Data.Data))
	for k, v := range payload.Data.Data {
		switch val := v.(type) {
		case string:
			out[k] = val
		case json.Number:
			out[k] = val.String()
		case bool:
			out[k] = strconv.FormatBool(val)
		}
	}
	return out, nil
}
