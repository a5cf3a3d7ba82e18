// Package advisor calls the advisory model and validates its trade ideas
package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"futures_orchestrator/internal/config"
	"futures_orchestrator/internal/core"
	apperrors "futures_orchestrator/pkg/errors"
	httpclient "futures_orchestrator/pkg/http"
)

const completionsPath = "/v1/chat/completions"

// bearerSigner adds the advisory API key as a bearer token
type bearerSigner struct {
	apiKey config.Secret
}

func (s *bearerSigner) SignRequest(req *http.Request) error {
	req.Header.Set("Authorization", "Bearer "+s.apiKey.Reveal())
	return nil
}

// Client is the chat-completions advisory client. One request covers the
// whole instrument basket; the response is parsed into zero or more
// per-instrument suggestions.
type Client struct {
	http        *httpclient.Client
	model       string
	temperature float64
	logger      core.ILogger
	now         func() time.Time
}

// NewClient creates an advisory client
func NewClient(cfg config.AdvisorConfig, logger core.ILogger) *Client {
	return &Client{
		http:        httpclient.NewClient(cfg.BaseURL, time.Duration(cfg.TimeoutSecs)*time.Second, &bearerSigner{apiKey: cfg.APIKey}),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		logger:      logger.WithField("component", "advisor"),
		now:         time.Now,
	}
}

type chatRequest struct {
	Model          string                 `json:"model"`
	Messages       []chatMessage          `json:"messages"`
	Temperature    float64                `json:"temperature"`
	ResponseFormat map[string]interface{} `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// GetSuggestions sends the cycle payload to the model and returns its
// validated suggestions. An empty slice with a nil error means the model
// sees no trade.
func (c *Client) GetSuggestions(ctx context.Context, payload core.AdvisoryPayload) ([]core.AdvisorySuggestion, error) {
	userPrompt, err := buildUserPrompt(payload)
	if err != nil {
		return nil, err
	}

	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature:    c.temperature,
		ResponseFormat: responseSchema(),
	}

	body, err := c.http.Post(ctx, completionsPath, req)
	if err != nil {
		if apiErr, ok := err.(*httpclient.APIError); ok && apiErr.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("%w: advisory API rejected credentials", apperrors.ErrAuthenticationFailed)
		}
		return nil, fmt.Errorf("advisory request failed: %w", err)
	}

	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrMalformedAdvisory, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: response has no choices", apperrors.ErrMalformedAdvisory)
	}

	suggestions, err := parseSuggestions(resp.Choices[0].Message.Content, c.logger, c.now())
	if err != nil {
		return nil, err
	}

	c.logger.Info("Advisory suggestions received",
		"instruments", len(payload.Snapshot.Instruments),
		"suggestions", len(suggestions))
	return suggestions, nil
}
