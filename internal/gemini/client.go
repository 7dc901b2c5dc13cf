// Package gemini implements a client for the Google generateContent REST
// endpoint. Requests carry a fixed persona preamble plus a bounded window
// of prior turns; responses are reduced to the first candidate's text.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/sergiecode/gemini-chat-backend/internal/config"
)

// Failure taxonomy. The error text doubles as the user-facing message, so
// callers surface these verbatim.
var (
	ErrNotConfigured     = errors.New("Gemini API key is not configured")
	ErrInvalidRequest    = errors.New("invalid request to Gemini, check the configuration")
	ErrInvalidCredential = errors.New("Gemini API key is invalid or lacks permissions")
	ErrRateLimited       = errors.New("request limit exceeded, try again later")
	ErrUpstream          = errors.New("Gemini server error, try again later")
	ErrConnectivity      = errors.New("could not connect to Gemini")
	ErrEmptyResponse     = errors.New("Gemini response contained no usable content")
)

const truncationNote = "\n\n[Note: the response was truncated by the token limit. You can ask me to continue.]"

// Client talks to a generateContent endpoint. The zero value is not usable;
// construct with New.
type Client struct {
	cfg  config.GeminiConfig
	http *http.Client
}

// New creates a client. httpClient may be nil, in which case
// http.DefaultClient is used; tests inject their own.
func New(cfg config.GeminiConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{cfg: cfg, http: httpClient}
}

// Configured reports whether the client has a usable key and endpoint.
func (c *Client) Configured() bool {
	return c.cfg.Configured()
}

// Complete sends one generation request and returns the reply text. history
// must already be role-tagged and windowed (see BuildHistory); the new user
// turn is appended after it.
func (c *Client) Complete(ctx context.Context, message string, history []Content) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}

	contents := make([]Content, 0, len(history)+3)
	contents = append(contents, personaPreamble()...)
	contents = append(contents, history...)
	contents = append(contents, Content{Role: RoleUser, Parts: []Part{{Text: message}}})

	reqBody := generateRequest{
		Contents: contents,
		GenerationConfig: generationConfig{
			MaxOutputTokens: 800,
			Temperature:     0.7,
		},
		SafetySettings: defaultSafetySettings(),
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	url := fmt.Sprintf("%s?key=%s", c.cfg.APIURL, c.cfg.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		log.Printf("[gemini] request failed: %v", err)
		return "", fmt.Errorf("%w: %v", ErrConnectivity, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		log.Printf("[gemini] endpoint returned %d: %s", resp.StatusCode, body)
		return "", statusError(resp.StatusCode)
	}

	var parsed generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	return extractText(parsed)
}

// statusError maps an HTTP status to the failure taxonomy.
func statusError(status int) error {
	switch {
	case status == http.StatusBadRequest:
		return ErrInvalidRequest
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrInvalidCredential
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	case status >= http.StatusInternalServerError:
		return ErrUpstream
	default:
		return fmt.Errorf("%w: unexpected status %d", ErrConnectivity, status)
	}
}

// extractText reduces a response to the first candidate's first text part,
// flagging truncated output.
func extractText(resp generateResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		return "", ErrEmptyResponse
	}

	candidate := resp.Candidates[0]
	if len(candidate.Content.Parts) == 0 || candidate.Content.Parts[0].Text == "" {
		return "", ErrEmptyResponse
	}

	text := candidate.Content.Parts[0].Text
	if candidate.FinishReason == "MAX_TOKENS" {
		text += truncationNote
	}
	return text, nil
}

// personaPreamble is the fixed two-turn instruction that establishes the
// assistant's behavior: a synthetic user instruction and the model's
// acknowledgment.
func personaPreamble() []Content {
	return []Content{
		{
			Role: RoleUser,
			Parts: []Part{{Text: "You are a helpful, friendly virtual assistant. " +
				"Always answer clearly and concisely. You specialize in general " +
				"questions, programming, and technology. Keep a professional but " +
				"approachable tone."}},
		},
		{
			Role: RoleModel,
			Parts: []Part{{Text: "Understood. I am your virtual assistant for " +
				"technology and programming. I will help you in a clear, " +
				"professional way. What can I do for you?"}},
		},
	}
}

// defaultSafetySettings relaxes blocking enough for technical content.
// Thresholds are fixed, not user-configurable.
func defaultSafetySettings() []safetySetting {
	categories := []string{
		"HARM_CATEGORY_HARASSMENT",
		"HARM_CATEGORY_HATE_SPEECH",
		"HARM_CATEGORY_SEXUALLY_EXPLICIT",
		"HARM_CATEGORY_DANGEROUS_CONTENT",
	}
	settings := make([]safetySetting, 0, len(categories))
	for _, category := range categories {
		settings = append(settings, safetySetting{
			Category:  category,
			Threshold: "BLOCK_MEDIUM_AND_ABOVE",
		})
	}
	return settings
}
