package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/mialabs/receptionist/pkg/logging"
)

const defaultCallTimeout = 15 * time.Second

var placeCallTracer = otel.Tracer("receptionist.internal.voice.client")

// Client initiates outbound confirmation calls via a Bland-style voice AI API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// ClientConfig configures the outbound voice client.
type ClientConfig struct {
	// APIKey is the provider API key (Bearer token).
	APIKey string
	// BaseURL is the provider API root, e.g. https://api.bland.ai/v1.
	BaseURL string
	// HTTPClient overrides the default HTTP client.
	HTTPClient *http.Client
	Logger     *logging.Logger
}

// NewClient creates a client for initiating outbound AI voice calls.
func NewClient(cfg ClientConfig) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("voice client: API key required")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("voice client: base URL required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultCallTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// CallRequest contains the parameters for one outbound confirmation call.
type CallRequest struct {
	// Phone is the patient's number in E.164.
	Phone string `json:"phone_number"`
	// Voice selects the agent persona.
	Voice string `json:"voice"`
	// Task is the script the agent works from.
	Task string `json:"task"`
	// CallbackURL receives the spoken confirmation reply.
	CallbackURL string `json:"callback_url"`
	// StatusCallbackURL receives the final call outcome.
	StatusCallbackURL string `json:"status_callback"`
}

// CallResult is the provider response for call initiation.
type CallResult struct {
	CallID string `json:"call_id"`
	Status string `json:"status"`
}

// PlaceCall starts one outbound AI voice call.
func (c *Client) PlaceCall(ctx context.Context, req CallRequest) (*CallResult, error) {
	if req.Phone == "" {
		return nil, fmt.Errorf("voice: phone number required")
	}
	if strings.TrimSpace(req.Task) == "" {
		return nil, fmt.Errorf("voice: task script required")
	}
	if req.CallbackURL == "" || req.StatusCallbackURL == "" {
		return nil, fmt.Errorf("voice: callback URLs required")
	}

	ctx, span := placeCallTracer.Start(ctx, "voice.place_call")
	defer span.End()
	span.SetAttributes(attribute.String("receptionist.to", logging.MaskPhone(req.Phone)))

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("voice: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/calls", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("voice: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	c.logger.Info("voice: initiating outbound call",
		"to", logging.MaskPhone(req.Phone),
		"voice", req.Voice,
	)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("voice: http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("voice: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("voice: API error",
			"status", resp.StatusCode,
			"body", string(respBody),
		)
		return nil, fmt.Errorf("voice: API returned %d: %s", resp.StatusCode, string(respBody))
	}

	var result CallResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("voice: decode response: %w", err)
	}

	c.logger.Info("voice: outbound call initiated",
		"call_id", result.CallID,
		"to", logging.MaskPhone(req.Phone),
	)

	return &result, nil
}
