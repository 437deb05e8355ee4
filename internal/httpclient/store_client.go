package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/portico/internal/interfaces"
	"github.com/ternarybob/portico/internal/models"
)

const (
	// DefaultTimeout bounds every store request.
	DefaultTimeout = 15 * time.Second

	// maxResponseSize caps how much of a store reply is read.
	maxResponseSize = 8 << 20
)

// Store actions, passed as the "action" query or form parameter
const (
	actionRead               = "read"
	actionCheckNotifications = "checkNotifications"
	actionGetRanking         = "getRanking"
	actionGetMonthlyStats    = "getMonthlyStats"
	actionGetUsers           = "getUsuarios"
	actionAdd                = "add"
	actionUpdateState        = "updateState"
	actionFinish             = "finish"
	actionDelete             = "delete"
	actionSaveUser           = "saveUser"
)

// StoreClient talks to the spreadsheet-backed script endpoint.
type StoreClient struct {
	baseURL    string
	userAgent  string
	timeout    time.Duration
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     arbor.ILogger
}

var _ interfaces.RemoteStore = (*StoreClient)(nil)

// StoreOption configures the StoreClient.
type StoreOption func(*StoreClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) StoreOption {
	return func(c *StoreClient) {
		c.httpClient = httpClient
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) StoreOption {
	return func(c *StoreClient) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(userAgent string) StoreOption {
	return func(c *StoreClient) {
		c.userAgent = userAgent
	}
}

// WithMinInterval paces outbound calls; zero disables pacing.
func WithMinInterval(interval time.Duration, burst int) StoreOption {
	return func(c *StoreClient) {
		if burst < 1 {
			burst = 1
		}
		if interval <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, burst)
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(interval), burst)
	}
}

// NewStoreClient creates a client for the store deployed at baseURL.
func NewStoreClient(baseURL string, logger arbor.ILogger, opts ...StoreOption) *StoreClient {
	c := &StoreClient{
		baseURL: baseURL,
		timeout: DefaultTimeout,
		limiter: rate.NewLimiter(rate.Every(100*time.Millisecond), 5),
		logger:  logger,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = newHTTPClient(c.timeout)
	}
	if c.logger == nil {
		c.logger = arbor.NewLogger()
	}

	return c
}

// ackResponse is the reply to every mutating action.
type ackResponse struct {
	Success *bool  `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

type notificationResponse struct {
	HasNew        bool `json:"hasNew"`
	Notifications []struct {
		Type      string               `json:"type"`
		Name      string               `json:"name"`
		Course    string               `json:"course"`
		Reason    string               `json:"reason"`
		Timestamp models.FlexTimestamp `json:"timestamp"`
		ExitTime  string               `json:"exitTime"`
	} `json:"notifications"`
}

type rankingResponse struct {
	Ranking [][]json.RawMessage `json:"rankingCompleto"`
}

// Read returns the raw record list payload.
func (c *StoreClient) Read(ctx context.Context) ([]byte, error) {
	return c.get(ctx, actionRead, nil)
}

// CheckNotifications returns notifications newer than lastCheck.
func (c *StoreClient) CheckNotifications(ctx context.Context, lastCheck int64) (*models.NotificationBatch, error) {
	params := url.Values{}
	params.Set("lastCheck", strconv.FormatInt(lastCheck, 10))

	body, err := c.get(ctx, actionCheckNotifications, params)
	if err != nil {
		return nil, err
	}

	var resp notificationResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrMalformedSnapshot, actionCheckNotifications, err)
	}

	batch := &models.NotificationBatch{HasNew: resp.HasNew}
	for _, n := range resp.Notifications {
		kind, ok := models.ParseNotificationKind(n.Type)
		if !ok {
			c.logger.Debug().Str("type", n.Type).Msg("Ignoring notification of unknown type")
			continue
		}
		batch.Items = append(batch.Items, models.NotificationEvent{
			Kind:      kind,
			Name:      n.Name,
			Course:    n.Course,
			Reason:    n.Reason,
			Timestamp: int64(n.Timestamp),
			ExitTime:  strings.TrimSpace(n.ExitTime),
		})
	}
	return batch, nil
}

// GetRanking returns the store's ranking, preserving its order.
func (c *StoreClient) GetRanking(ctx context.Context) ([]models.CourseCount, error) {
	body, err := c.get(ctx, actionGetRanking, nil)
	if err != nil {
		return nil, err
	}

	var resp rankingResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrMalformedSnapshot, actionGetRanking, err)
	}

	ranking := make([]models.CourseCount, 0, len(resp.Ranking))
	for _, pair := range resp.Ranking {
		if len(pair) < 2 {
			continue
		}
		var label string
		if err := json.Unmarshal(pair[0], &label); err != nil {
			label = strings.Trim(string(pair[0]), `"`)
		}
		var count float64
		if err := json.Unmarshal(pair[1], &count); err != nil {
			continue
		}
		ranking = append(ranking, models.CourseCount{Label: label, Count: int(count)})
	}
	return ranking, nil
}

// GetMonthlyStats returns the monthly series.
func (c *StoreClient) GetMonthlyStats(ctx context.Context) (*models.MonthlyStats, error) {
	body, err := c.get(ctx, actionGetMonthlyStats, nil)
	if err != nil {
		return nil, err
	}

	var stats models.MonthlyStats
	if err := json.Unmarshal(body, &stats); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrMalformedSnapshot, actionGetMonthlyStats, err)
	}
	if len(stats.Months) != len(stats.Values) {
		return nil, fmt.Errorf("%w: %s: %d months but %d values", models.ErrMalformedSnapshot, actionGetMonthlyStats, len(stats.Months), len(stats.Values))
	}
	return &stats, nil
}

// GetUsers returns the operator roster.
func (c *StoreClient) GetUsers(ctx context.Context) ([]models.Operator, error) {
	body, err := c.get(ctx, actionGetUsers, nil)
	if err != nil {
		return nil, err
	}

	var users []models.Operator
	if err := json.Unmarshal(body, &users); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrMalformedSnapshot, actionGetUsers, err)
	}
	return users, nil
}

// Add registers a new record.
func (c *StoreClient) Add(ctx context.Context, record models.Withdrawal) error {
	form := url.Values{}
	form.Set("name", record.Name)
	form.Set("course", record.Course)
	form.Set("reason", record.Reason)
	form.Set("status", string(record.Status))
	form.Set("timestamp", record.Key())
	form.Set("responsable", responsibleOrDefault(record.Responsible))
	return c.post(ctx, actionAdd, form, true)
}

// UpdateState sets the status of the record created at createdAt.
func (c *StoreClient) UpdateState(ctx context.Context, createdAt int64, status models.Status, responsible string) error {
	form := url.Values{}
	form.Set("timestamp", strconv.FormatInt(createdAt, 10))
	form.Set("newState", string(status))
	form.Set("responsable", responsibleOrDefault(responsible))
	return c.post(ctx, actionUpdateState, form, true)
}

// Finish records the exit time of the record created at createdAt.
func (c *StoreClient) Finish(ctx context.Context, createdAt int64, exitTime string, responsible string) error {
	form := url.Values{}
	form.Set("timestamp", strconv.FormatInt(createdAt, 10))
	form.Set("exitTime", exitTime)
	form.Set("responsable", responsibleOrDefault(responsible))
	return c.post(ctx, actionFinish, form, true)
}

// Delete removes the record created at createdAt.
func (c *StoreClient) Delete(ctx context.Context, createdAt int64) error {
	form := url.Values{}
	form.Set("timestamp", strconv.FormatInt(createdAt, 10))
	return c.post(ctx, actionDelete, form, true)
}

// SaveUser adds an operator to the roster. The store only acknowledges it,
// so a reply without a success field is accepted.
func (c *StoreClient) SaveUser(ctx context.Context, operator models.Operator) error {
	form := url.Values{}
	form.Set("nombre", operator.Name)
	form.Set("cargo", operator.Role)
	return c.post(ctx, actionSaveUser, form, false)
}

func (c *StoreClient) get(ctx context.Context, action string, params url.Values) ([]byte, error) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("action", action)

	reqURL, err := c.actionURL(params)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	return c.do(ctx, action, req)
}

func (c *StoreClient) post(ctx context.Context, action string, form url.Values, strict bool) error {
	form.Set("action", action)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	body, err := c.do(ctx, action, req)
	if err != nil {
		return err
	}

	var ack ackResponse
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &ack); err != nil {
			if strict {
				return fmt.Errorf("%w: %s: undecodable reply: %v", models.ErrNetworkFailure, action, err)
			}
			return nil
		}
	}

	if ack.Success == nil {
		if strict {
			return &models.RemoteRejectedError{Action: action, Message: firstNonEmpty(ack.Message, ack.Error)}
		}
		return nil
	}
	if !*ack.Success {
		return &models.RemoteRejectedError{Action: action, Message: firstNonEmpty(ack.Message, ack.Error)}
	}
	return nil
}

func (c *StoreClient) do(ctx context.Context, action string, req *http.Request) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %s: rate limiter: %v", models.ErrNetworkFailure, action, err)
	}

	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug().Str("action", action).Err(err).Msg("Store request failed")
		return nil, fmt.Errorf("%w: %s: %v", models.ErrNetworkFailure, action, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: reading reply: %v", models.ErrNetworkFailure, action, err)
	}

	c.logger.Debug().
		Str("action", action).
		Int("status", resp.StatusCode).
		Int("bytes", len(body)).
		Dur("elapsed", time.Since(start)).
		Msg("Store request")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s: status %d", models.ErrNetworkFailure, action, resp.StatusCode)
	}
	return body, nil
}

func (c *StoreClient) actionURL(params url.Values) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid store url: %w", err)
	}
	q := u.Query()
	for key, values := range params {
		for _, v := range values {
			q.Set(key, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func responsibleOrDefault(responsible string) string {
	if strings.TrimSpace(responsible) == "" {
		return models.UnattributedResponsible
	}
	return responsible
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
