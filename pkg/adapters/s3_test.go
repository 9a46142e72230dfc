package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memoryObjects) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[*params.Bucket+"/"+*params.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (m *memoryObjects) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[*params.Bucket+"/"+*params.Key]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func TestS3Archive(t *testing.T) {
	store := &memoryObjects{objects: make(map[string][]byte)}
	archive := newS3Archive(store, S3Config{Bucket: "artifacts", Prefix: "/quill/"})
	archive.now = func() time.Time { return time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	record, err := archive.CreateRecord(ctx, "acme", map[string]interface{}{
		FieldTitle: "Launch",
		FieldBody:  "Hello",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(record.ID, "acme/"))
	assert.True(t, strings.HasPrefix(record.URL, "s3://artifacts/quill/acme/"))

	raw := store.objects["artifacts/"+archive.key(record.ID)]
	require.NotEmpty(t, raw)
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, "Launch", doc["Name"])
	assert.Equal(t, "Hello", doc["Body"])
	assert.Equal(t, "acme", doc["parent_id"])

	t.Run("should merge updates", func(t *testing.T) {
		_, err := archive.UpdateRecord(ctx, record.ID, map[string]interface{}{FieldStatus: "Published"})
		require.NoError(t, err)

		var updated map[string]interface{}
		require.NoError(t, json.Unmarshal(store.objects["artifacts/"+archive.key(record.ID)], &updated))
		assert.Equal(t, "Launch", updated["Name"])
		assert.Equal(t, "Published", updated["Status"])
	})

	t.Run("should fail for unknown record", func(t *testing.T) {
		_, err := archive.UpdateRecord(ctx, "acme/missing", map[string]interface{}{FieldStatus: "x"})
		assert.Error(t, err)
	})

	t.Run("should reject traversal", func(t *testing.T) {
		_, err := archive.CreateRecord(ctx, "../etc", nil)
		assert.Error(t, err)
	})

	t.Run("should use public base url", func(t *testing.T) {
		public := newS3Archive(store, S3Config{Bucket: "artifacts", PublicBaseURL: "https://cdn.example.com/"})
		rec, err := public.CreateRecord(ctx, "acme", map[string]interface{}{FieldTitle: "x"})
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(rec.URL, "https://cdn.example.com/acme/"))
	})
}
