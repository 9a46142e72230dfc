package adapters

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloudinarySearch(t *testing.T) {
	t.Run("should return first resource", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1_1/acme/resources/search", r.URL.Path)
			user, pass, ok := r.BasicAuth()
			assert.True(t, ok)
			assert.Equal(t, "key", user)
			assert.Equal(t, "secret", pass)
			w.Write([]byte(`{"resources":[{"asset_id":"a1","public_id":"launch/hero","secure_url":"https://res.cloudinary.com/acme/hero.png","format":"png","width":1200,"height":630}]}`))
		}))
		defer server.Close()

		search, err := NewCloudinarySearch(CloudinaryConfig{CloudName: "acme", APIKey: "key", APISecret: "secret", BaseURL: server.URL})
		require.NoError(t, err)

		asset, err := search.SearchAsset(context.Background(), "tags=launch")
		require.NoError(t, err)
		assert.Equal(t, "launch/hero", asset.ID)
		assert.Equal(t, "https://res.cloudinary.com/acme/hero.png", asset.URL)
		assert.Equal(t, 1200, asset.Width)
	})

	t.Run("should report no match", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"resources":[]}`))
		}))
		defer server.Close()

		search, err := NewCloudinarySearch(CloudinaryConfig{CloudName: "acme", APIKey: "key", APISecret: "secret", BaseURL: server.URL})
		require.NoError(t, err)

		_, err = search.SearchAsset(context.Background(), "tags=missing")
		assert.ErrorIs(t, err, ErrAssetNotFound)
	})

	t.Run("should require credentials", func(t *testing.T) {
		_, err := NewCloudinarySearch(CloudinaryConfig{CloudName: "acme"})
		assert.Error(t, err)
	})
}
