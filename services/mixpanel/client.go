package mixpanel

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/upb/analytics-tools/config"
	"github.com/upb/analytics-tools/internal/observability"
	"github.com/upb/analytics-tools/services"
	"go.uber.org/zap"
)

const (
	defaultExportURL = "https://data.mixpanel.com/api/2.0/export"

	// maxErrorBody bounds how much of a failed response is logged.
	maxErrorBody = 4 * 1024
)

// Client streams raw events from the Mixpanel export API.
type Client struct {
	config     config.MixpanelConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new export client. A zero Timeout leaves the HTTP
// client without a deadline.
func NewClient(cfg config.MixpanelConfig, logger *zap.Logger) *Client {
	if cfg.ExportURL == "" {
		cfg.ExportURL = defaultExportURL
	}

	return &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}
}

// AuthHeader returns the Basic authorization value: the API secret as user
// name and an empty password.
func (c *Client) AuthHeader() string {
	credentials := c.config.APISecret + ":"
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(credentials))
}

// Fetch requests all raw events in r. It never returns an error: transport
// failures are logged and reported as *FetchFailed. On *Fetched the caller
// owns the stream and must close it.
func (c *Client) Fetch(ctx context.Context, r DateRange) FetchResult {
	logger := observability.WithRun(ctx, c.logger).With(
		zap.String("from_date", r.FromParam()),
		zap.String("to_date", r.ToParam()),
		zap.String("project_id", c.config.ProjectID),
	)
	logger.Info("requesting export data")

	if err := ctx.Err(); err != nil {
		logger.Warn("export request cancelled", zap.Error(err))
		return &FetchFailed{Reason: err}
	}

	req, err := c.newRequest(ctx, r)
	if err != nil {
		return c.failed(logger, "failed to build export request", err, nil)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			logger.Warn("export request cancelled", zap.Error(ctxErr))
			return &FetchFailed{Reason: ctxErr}
		}
		return c.failed(logger, "export request failed", err, nil)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		statusErr := fmt.Errorf("unexpected status %d", resp.StatusCode)
		return c.failed(logger, "export request failed", statusErr, body)
	}

	return &Fetched{Stream: newEventStream(resp.Body, logger)}
}

func (c *Client) newRequest(ctx context.Context, r DateRange) (*http.Request, error) {
	u, err := url.Parse(c.config.ExportURL)
	if err != nil {
		return nil, fmt.Errorf("invalid export URL: %w", err)
	}

	q := u.Query()
	q.Set("from_date", r.FromParam())
	q.Set("to_date", r.ToParam())
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", c.AuthHeader())
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) failed(logger *zap.Logger, msg string, cause error, body []byte) *FetchFailed {
	fields := []zap.Field{zap.Error(cause)}
	if content := strings.TrimSpace(string(body)); content != "" {
		fields = append(fields, zap.String("response_content", content))
	}
	logger.Error(msg, fields...)

	return &FetchFailed{
		Reason: services.WrapError(services.ErrorTypeTransport, msg, cause),
	}
}
