// Package shopify is a small Admin API client covering the calls the
// campaign pipeline and the order bridge make.
package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/campaignbridge/internal/config"
	"go.uber.org/zap"
)

var (
	ErrNotConfigured = errors.New("shopify_not_configured")
	ErrUserErrors    = errors.New("shopify_user_errors")
)

// APIError is returned for any response with status >= 400.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("shopify %s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

// Retryable reports whether the platform asked us to back off or failed server-side.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

type GraphQLError struct {
	Message    string `json:"message"`
	Path       []any  `json:"path,omitempty"`
	Extensions struct {
		Code string `json:"code,omitempty"`
	} `json:"extensions,omitempty"`
}

type GraphQLErrors []GraphQLError

func (e GraphQLErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, gqlErr := range e {
		msgs = append(msgs, gqlErr.Message)
	}
	return "shopify graphql: " + strings.Join(msgs, "; ")
}

type UserError struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
	Code    string   `json:"code,omitempty"`
}

type graphQLResponse[T any] struct {
	Data   T             `json:"data"`
	Errors GraphQLErrors `json:"errors"`
}

type Config struct {
	StoreDomain string
	AdminToken  string
	APIVersion  string
	Timeout     time.Duration
	// BaseURL overrides https://<StoreDomain>; used against test servers.
	BaseURL string
}

type Client struct {
	http    *http.Client
	baseURL string
	token   string
	version string
	log     *zap.Logger
}

func New(cfg config.Config, log *zap.Logger) *Client {
	return NewClient(Config{
		StoreDomain: cfg.Shopify.StoreDomain,
		AdminToken:  cfg.Shopify.AdminToken,
		APIVersion:  cfg.Shopify.APIVersion,
		Timeout:     cfg.Shopify.Timeout,
	}, nil, log)
}

func NewClient(cfg Config, httpClient *http.Client, log *zap.Logger) *Client {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	if log == nil {
		log = zap.NewNop()
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" && strings.TrimSpace(cfg.StoreDomain) != "" {
		baseURL = "https://" + strings.TrimSpace(cfg.StoreDomain)
	}
	version := strings.TrimSpace(cfg.APIVersion)
	if version == "" {
		version = "2024-10"
	}
	return &Client{
		http:    httpClient,
		baseURL: baseURL,
		token:   strings.TrimSpace(cfg.AdminToken),
		version: version,
		log:     log.Named("shopify.client"),
	}
}

func (c *Client) configured() error {
	if c == nil || c.baseURL == "" || c.token == "" {
		return ErrNotConfigured
	}
	return nil
}

func (c *Client) adminURL(path string) string {
	return fmt.Sprintf("%s/admin/api/%s/%s", c.baseURL, c.version, strings.TrimLeft(path, "/"))
}

// Do runs a GraphQL Admin query and decodes its data object into T.
func Do[T any](ctx context.Context, c *Client, op, query string, variables map[string]any) (*T, error) {
	payload, err := json.Marshal(map[string]any{
		"query":     query,
		"variables": variables,
	})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", op, err)
	}

	raw, err := c.send(ctx, op, http.MethodPost, c.adminURL("graphql.json"), payload)
	if err != nil {
		return nil, err
	}

	var out graphQLResponse[T]
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", op, err)
	}
	if len(out.Errors) > 0 {
		return nil, out.Errors
	}
	return &out.Data, nil
}

func (c *Client) send(ctx context.Context, op, method, url string, payload []byte) ([]byte, error) {
	if err := c.configured(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Shopify-Access-Token", c.token)

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("shopify %s: %w", op, err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", op, err)
	}

	c.log.Debug("shopify call",
		zap.String("op", op),
		zap.Int("status", res.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if res.StatusCode >= http.StatusBadRequest {
		body := string(raw)
		if len(body) > 512 {
			body = body[:512]
		}
		return nil, &APIError{Op: op, StatusCode: res.StatusCode, Body: body}
	}
	return raw, nil
}

func userErrorsErr(op string, errs []UserError) error {
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(errs))
	for _, ue := range errs {
		msg := ue.Message
		if len(ue.Field) > 0 {
			msg = strings.Join(ue.Field, ".") + ": " + msg
		}
		msgs = append(msgs, msg)
	}
	return fmt.Errorf("%w: %s: %s", ErrUserErrors, op, strings.Join(msgs, "; "))
}
