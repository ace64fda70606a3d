package controlplane

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"tidebase/pkg/logger"

	"go.uber.org/zap"
)

// API is the slice of the workspace control plane this app depends on:
// endpoint enumeration for a project/branch, short-lived database credential
// issuance, and the identity of the calling principal.
type API interface {
	ListEndpoints(ctx context.Context, project, branch string) ([]Endpoint, error)
	GenerateCredential(ctx context.Context, endpointName string) (Credential, error)
	// WorkspaceToken backs the legacy/provisioned path where no endpoint name
	// exists to generate a scoped credential against.
	WorkspaceToken(ctx context.Context) (Credential, error)
	WhoAmI(ctx context.Context) (string, error)
}

// Endpoint is a compute endpoint as reported by the control plane.
type Endpoint struct {
	Name  string        `json:"name"`
	Host  string        `json:"host"`
	State string        `json:"state"`
	Spec  AutoscaleSpec `json:"spec"`
}

type AutoscaleSpec struct {
	MinCU float64 `json:"autoscaling_limit_min_cu"`
	MaxCU float64 `json:"autoscaling_limit_max_cu"`
}

// Credential is an opaque bearer token for the storage engine.
type Credential struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiration_time"`
}

// APIError carries the control plane's HTTP status so callers can tell an
// auth denial from a transient failure.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("control plane: status %d: %s", e.Status, e.Message)
}

// IsAuthError reports whether err is a control-plane denial (401/403).
func IsAuthError(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && (ae.Status == http.StatusUnauthorized || ae.Status == http.StatusForbidden)
}

// Client talks to the workspace REST API with a long-lived workspace token.
type Client struct {
	host       string
	token      string
	httpClient *http.Client
}

func NewClient(host, token string, timeout time.Duration) *Client {
	return &Client{
		host:       host,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) ListEndpoints(ctx context.Context, project, branch string) ([]Endpoint, error) {
	url := fmt.Sprintf("%s/api/2.0/postgres/projects/%s/branches/%s/endpoints", c.host, project, branch)

	var res struct {
		Endpoints []Endpoint `json:"endpoints"`
	}
	if err := c.doJSON(ctx, http.MethodGet, url, nil, &res); err != nil {
		return nil, err
	}
	return res.Endpoints, nil
}

func (c *Client) GenerateCredential(ctx context.Context, endpointName string) (Credential, error) {
	url := fmt.Sprintf("%s/api/2.0/postgres/credentials", c.host)
	body := map[string]string{"endpoint": endpointName}

	var cred Credential
	if err := c.doJSON(ctx, http.MethodPost, url, body, &cred); err != nil {
		return Credential{}, err
	}
	if cred.Token == "" {
		return Credential{}, &APIError{Status: http.StatusBadGateway, Message: "credential response without token"}
	}
	return cred, nil
}

// WorkspaceToken exchanges the configured workspace token for a short-lived
// OAuth access token usable as a database password in provisioned mode.
func (c *Client) WorkspaceToken(ctx context.Context) (Credential, error) {
	url := fmt.Sprintf("%s/oidc/v1/token", c.host)

	var res struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := c.doJSON(ctx, http.MethodPost, url, map[string]string{
		"grant_type": "client_credentials",
		"scope":      "all-apis",
	}, &res); err != nil {
		return Credential{}, err
	}
	if res.AccessToken == "" {
		return Credential{}, &APIError{Status: http.StatusBadGateway, Message: "token response without access_token"}
	}
	cred := Credential{Token: res.AccessToken}
	if res.ExpiresIn > 0 {
		cred.ExpiresAt = time.Now().Add(time.Duration(res.ExpiresIn) * time.Second)
	}
	return cred, nil
}

func (c *Client) WhoAmI(ctx context.Context) (string, error) {
	url := fmt.Sprintf("%s/api/2.0/me", c.host)

	var res struct {
		UserName string `json:"user_name"`
	}
	if err := c.doJSON(ctx, http.MethodGet, url, nil, &res); err != nil {
		return "", err
	}
	return res.UserName, nil
}

func (c *Client) doJSON(ctx context.Context, method, url string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("control plane request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		logger.Warn("control plane error",
			zap.String("url", url),
			zap.Int("status", resp.StatusCode))
		return &APIError{Status: resp.StatusCode, Message: string(msg)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode control plane response: %w", err)
	}
	return nil
}
