package adapters

import (
	"context"
	"errors"
	"time"
)

// ErrAssetNotFound is returned when a search matches nothing.
var ErrAssetNotFound = errors.New("no asset matched the query")

// Record identifies an archived artifact.
type Record struct {
	ID  string `json:"id"`
	URL string `json:"url,omitempty"`
}

// Scheduled describes a send queued with the email platform.
type Scheduled struct {
	ID     string    `json:"id"`
	Status string    `json:"status"`
	URL    string    `json:"url,omitempty"`
	SendAt time.Time `json:"send_at"`
}

// Asset is a media item found by search.
type Asset struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Format string `json:"format,omitempty"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// Posted describes a delivered notification.
type Posted struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Channel string `json:"channel"`
}

// SendRequest is a customer-facing send to schedule.
type SendRequest struct {
	Subject string
	Content string
	SendAt  time.Time
}

// Archive persists artifacts. Field names are logical and translated by the
// implementation through its FieldMap.
type Archive interface {
	CreateRecord(ctx context.Context, parentID string, fields map[string]interface{}) (Record, error)
	UpdateRecord(ctx context.Context, recordID string, fields map[string]interface{}) (Record, error)
}

// Scheduler queues customer-facing sends.
type Scheduler interface {
	ScheduleSend(ctx context.Context, req SendRequest) (Scheduled, error)
}

// AssetSearch looks up media assets.
type AssetSearch interface {
	SearchAsset(ctx context.Context, query string) (Asset, error)
}

// Notifier posts internal team notifications.
type Notifier interface {
	PostMessage(ctx context.Context, channel, text string) (Posted, error)
}
