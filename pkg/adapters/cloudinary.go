package adapters

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const defaultCloudinaryBaseURL = "https://api.cloudinary.com"

// CloudinaryConfig configures CloudinarySearch.
type CloudinaryConfig struct {
	CloudName  string
	APIKey     string
	APISecret  string
	BaseURL    string
	HTTPClient *http.Client
}

// CloudinarySearch finds assets through the Cloudinary search API. The query
// is passed through as a search expression; ranking is Cloudinary's.
type CloudinarySearch struct {
	client    *restClient
	cloudName string
}

// NewCloudinarySearch creates a Cloudinary client.
func NewCloudinarySearch(cfg CloudinaryConfig) (*CloudinarySearch, error) {
	if cfg.CloudName == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, errors.New("cloudinary: cloud name, api key and api secret are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultCloudinaryBaseURL
	}

	key, secret := cfg.APIKey, cfg.APISecret
	return &CloudinarySearch{
		client: newRESTClient("cloudinary", cfg.BaseURL, cfg.HTTPClient, func(req *http.Request) {
			req.SetBasicAuth(key, secret)
		}),
		cloudName: cfg.CloudName,
	}, nil
}

// SearchAsset returns the best match for query.
func (c *CloudinarySearch) SearchAsset(ctx context.Context, query string) (Asset, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Asset{}, errors.New("cloudinary: query is required")
	}

	payload := map[string]interface{}{
		"expression":  query,
		"max_results": 1,
	}

	var resp struct {
		Resources []struct {
			AssetID   string `json:"asset_id"`
			PublicID  string `json:"public_id"`
			SecureURL string `json:"secure_url"`
			Format    string `json:"format"`
			Width     int    `json:"width"`
			Height    int    `json:"height"`
		} `json:"resources"`
	}
	path := fmt.Sprintf("/v1_1/%s/resources/search", url.PathEscape(c.cloudName))
	if err := c.client.do(ctx, http.MethodPost, path, payload, &resp); err != nil {
		return Asset{}, err
	}
	if len(resp.Resources) == 0 {
		return Asset{}, fmt.Errorf("%w: %q", ErrAssetNotFound, query)
	}

	r := resp.Resources[0]
	id := r.PublicID
	if id == "" {
		id = r.AssetID
	}
	return Asset{ID: id, URL: r.SecureURL, Format: r.Format, Width: r.Width, Height: r.Height}, nil
}
