package sheetapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"salesanalysis/backend/internal/domain"
)

const defaultFailureMessage = "データ取得に失敗しました"

var ErrNotConfigured = errors.New("sheet api url is not configured")

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Total   int             `json:"total"`
}

// Client talks to the spreadsheet-backed web app: GET with an action query
// parameter for reads, text/plain POST bodies for writes.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	requestID  func() string
}

func New(baseURL string, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimSpace(baseURL),
		httpClient: httpClient,
		logger:     logger.With(zap.String("component", "sheetapi")),
		requestID:  uuid.NewString,
	}
}

func (c *Client) Configured() bool {
	return c != nil && c.baseURL != ""
}

// Get performs action and decodes the data field into dest. It returns the
// server-reported total for paginated actions (0 when absent).
func (c *Client) Get(ctx context.Context, action string, params url.Values, dest any) (int, error) {
	if !c.Configured() {
		return 0, ErrNotConfigured
	}

	endpoint, err := url.Parse(c.baseURL)
	if err != nil {
		return 0, &TransportError{Action: action, Err: err}
	}
	query := endpoint.Query()
	query.Set("action", action)
	for key, values := range params {
		for _, v := range values {
			query.Add(key, v)
		}
	}
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return 0, &TransportError{Action: action, Err: err}
	}

	startedAt := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("request failed", zap.String("action", action), zap.Error(err))
		return 0, &TransportError{Action: action, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		err := fmt.Errorf("unexpected status %d", resp.StatusCode)
		c.logger.Warn("request failed", zap.String("action", action), zap.Error(err))
		return 0, &TransportError{Action: action, Err: err}
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		c.logger.Warn("response decode failed", zap.String("action", action), zap.Error(err))
		return 0, &TransportError{Action: action, Err: err}
	}
	if !env.Success {
		msg := env.Error
		if msg == "" {
			msg = defaultFailureMessage
		}
		c.logger.Warn("request rejected", zap.String("action", action), zap.String("error", msg))
		return 0, &APIError{Action: action, Message: msg}
	}

	if dest != nil && len(env.Data) > 0 && !bytes.Equal(env.Data, []byte("null")) {
		if err := json.Unmarshal(env.Data, dest); err != nil {
			c.logger.Warn("data decode failed", zap.String("action", action), zap.Error(err))
			return 0, &TransportError{Action: action, Err: err}
		}
	}

	c.logger.Debug("request done",
		zap.String("action", action),
		zap.Int("total", env.Total),
		zap.Duration("elapsed", time.Since(startedAt)),
	)
	return env.Total, nil
}

// Post sends a write without reading the response. The backend gives no
// readable answer, so acceptance is assumed and callers must re-fetch to
// learn whether the write landed.
func (c *Client) Post(ctx context.Context, action string, payload map[string]any) (domain.MutationResult, error) {
	if !c.Configured() {
		return domain.MutationResult{}, ErrNotConfigured
	}

	body := make(map[string]any, len(payload)+2)
	for k, v := range payload {
		body[k] = v
	}
	requestID := c.requestID()
	body["action"] = action
	body["requestId"] = requestID

	encoded, err := json.Marshal(body)
	if err != nil {
		return domain.MutationResult{}, &TransportError{Action: action, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(encoded))
	if err != nil {
		return domain.MutationResult{}, &TransportError{Action: action, Err: err}
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("mutation failed", zap.String("action", action), zap.String("request_id", requestID), zap.Error(err))
		return domain.MutationResult{}, &TransportError{Action: action, Err: err}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	c.logger.Info("mutation sent", zap.String("action", action), zap.String("request_id", requestID))
	return domain.MutationResult{Accepted: true, RequestID: requestID}, nil
}

func params(kv ...string) url.Values {
	values := url.Values{}
	for i := 0; i+1 < len(kv); i += 2 {
		values.Set(kv[i], kv[i+1])
	}
	return values
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
