package adapters

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/robfig/cron/v3"
)

const defaultBeehiivBaseURL = "https://api.beehiiv.com"

// BeehiivConfig configures BeehiivScheduler.
type BeehiivConfig struct {
	APIKey        string
	PublicationID string
	BaseURL       string
	HTTPClient    *http.Client
}

// BeehiivScheduler schedules newsletter posts.
type BeehiivScheduler struct {
	client        *restClient
	publicationID string
}

// NewBeehiivScheduler creates a Beehiiv client.
func NewBeehiivScheduler(cfg BeehiivConfig) (*BeehiivScheduler, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("beehiiv: api key is required")
	}
	if cfg.PublicationID == "" {
		return nil, errors.New("beehiiv: publication id is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBeehiivBaseURL
	}

	apiKey := cfg.APIKey
	return &BeehiivScheduler{
		client: newRESTClient("beehiiv", cfg.BaseURL, cfg.HTTPClient, func(req *http.Request) {
			req.Header.Set("Authorization", "Bearer "+apiKey)
		}),
		publicationID: cfg.PublicationID,
	}, nil
}

// ScheduleSend creates a post scheduled for req.SendAt.
func (b *BeehiivScheduler) ScheduleSend(ctx context.Context, req SendRequest) (Scheduled, error) {
	if req.Subject == "" {
		return Scheduled{}, errors.New("beehiiv: subject is required")
	}
	if req.Content == "" {
		return Scheduled{}, errors.New("beehiiv: content is required")
	}
	if req.SendAt.IsZero() {
		return Scheduled{}, errors.New("beehiiv: send time is required")
	}

	payload := map[string]interface{}{
		"title":        req.Subject,
		"body_content": req.Content,
		"status":       "confirmed",
		"scheduled_at": req.SendAt.UTC().Format(time.RFC3339),
	}

	var resp struct {
		Data struct {
			ID     string `json:"id"`
			Status string `json:"status"`
			WebURL string `json:"web_url"`
		} `json:"data"`
	}
	path := fmt.Sprintf("/v2/publications/%s/posts", url.PathEscape(b.publicationID))
	if err := b.client.do(ctx, http.MethodPost, path, payload, &resp); err != nil {
		return Scheduled{}, err
	}

	status := resp.Data.Status
	if status == "" {
		status = "scheduled"
	}
	return Scheduled{
		ID:     resp.Data.ID,
		Status: status,
		URL:    resp.Data.WebURL,
		SendAt: req.SendAt.UTC(),
	}, nil
}

var sendScheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// NextSendSlot returns the first time after now matching the cron expression
// expr, evaluated in timezone tz (UTC when empty).
func NextSendSlot(expr, tz string, now time.Time) (time.Time, error) {
	if expr == "" {
		return time.Time{}, errors.New("send schedule is empty")
	}

	loc := time.UTC
	if tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timezone %q: %w", tz, err)
		}
		loc = l
	}

	schedule, err := sendScheduleParser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid send schedule %q: %w", expr, err)
	}

	next := schedule.Next(now.In(loc))
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("send schedule %q never fires", expr)
	}
	return next, nil
}
