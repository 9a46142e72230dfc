package adapters

import (
	"context"
	"errors"
	"net/http"
)

const defaultSlackBaseURL = "https://slack.com"

// SlackConfig configures SlackNotifier.
type SlackConfig struct {
	BotToken   string
	BaseURL    string
	HTTPClient *http.Client
}

// SlackNotifier posts messages with chat.postMessage.
type SlackNotifier struct {
	client *restClient
}

// NewSlackNotifier creates a Slack client.
func NewSlackNotifier(cfg SlackConfig) (*SlackNotifier, error) {
	if cfg.BotToken == "" {
		return nil, errors.New("slack: bot token is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultSlackBaseURL
	}

	token := cfg.BotToken
	return &SlackNotifier{
		client: newRESTClient("slack", cfg.BaseURL, cfg.HTTPClient, func(req *http.Request) {
			req.Header.Set("Authorization", "Bearer "+token)
		}),
	}, nil
}

// PostMessage sends text to channel. Slack reports failures in the body with
// a 200 status, so ok=false is turned into an APIError.
func (s *SlackNotifier) PostMessage(ctx context.Context, channel, text string) (Posted, error) {
	if channel == "" {
		return Posted{}, errors.New("slack: channel is required")
	}
	if text == "" {
		return Posted{}, errors.New("slack: text is required")
	}

	var resp struct {
		OK      bool   `json:"ok"`
		Error   string `json:"error"`
		TS      string `json:"ts"`
		Channel string `json:"channel"`
	}
	payload := map[string]string{"channel": channel, "text": text}
	if err := s.client.do(ctx, http.MethodPost, "/api/chat.postMessage", payload, &resp); err != nil {
		return Posted{}, err
	}
	if !resp.OK {
		return Posted{}, &APIError{Service: "slack", StatusCode: http.StatusOK, Message: resp.Error}
	}

	posted := Posted{ID: resp.TS, Status: "sent", Channel: resp.Channel}
	if posted.Channel == "" {
		posted.Channel = channel
	}
	return posted, nil
}
