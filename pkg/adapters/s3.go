package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// objectAPI is the subset of *s3.Client the archive needs.
type objectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Config configures S3Archive.
type S3Config struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	// PublicBaseURL, when set, is used to build record URLs instead of s3:// links.
	PublicBaseURL string
	FieldMap      FieldMap
}

// S3Archive stores each record as a JSON object at
// <prefix>/<parent>/<uuid>.json. The record id is "<parent>/<uuid>".
type S3Archive struct {
	client  objectAPI
	bucket  string
	prefix  string
	baseURL string
	fields  FieldMap
	now     func() time.Time
}

// NewS3Archive loads AWS configuration and creates the archive. Static
// credentials are used when both keys are set, otherwise the default chain.
func NewS3Archive(ctx context.Context, cfg S3Config) (*S3Archive, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}

	var optFns []func(*awsConfig.LoadOptions) error
	if cfg.Region != "" {
		optFns = append(optFns, awsConfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		creds := credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
		optFns = append(optFns, awsConfig.WithCredentialsProvider(creds))
	}

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("s3: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return newS3Archive(client, cfg), nil
}

func newS3Archive(client objectAPI, cfg S3Config) *S3Archive {
	fields := cfg.FieldMap
	if fields == nil {
		fields = DefaultFieldMap()
	}
	return &S3Archive{
		client:  client,
		bucket:  cfg.Bucket,
		prefix:  strings.Trim(cfg.Prefix, "/"),
		baseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		fields:  fields,
		now:     time.Now,
	}
}

// CreateRecord writes a new JSON document under parentID.
func (a *S3Archive) CreateRecord(ctx context.Context, parentID string, fields map[string]interface{}) (Record, error) {
	if parentID == "" {
		return Record{}, errors.New("s3: parent id is required")
	}
	if strings.Contains(parentID, "..") {
		return Record{}, fmt.Errorf("s3: invalid parent id %q", parentID)
	}

	id := path.Join(parentID, uuid.NewString())
	now := a.now().UTC().Format(time.RFC3339Nano)

	doc := map[string]interface{}{
		"id":         id,
		"parent_id":  parentID,
		"created_at": now,
		"updated_at": now,
	}
	for logical, v := range fields {
		doc[a.fields.External(logical)] = v
	}

	if err := a.put(ctx, id, doc); err != nil {
		return Record{}, err
	}
	return Record{ID: id, URL: a.url(id)}, nil
}

// UpdateRecord merges fields into an existing document.
func (a *S3Archive) UpdateRecord(ctx context.Context, recordID string, fields map[string]interface{}) (Record, error) {
	if recordID == "" || strings.Contains(recordID, "..") {
		return Record{}, fmt.Errorf("s3: invalid record id %q", recordID)
	}

	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.key(recordID)),
	})
	if err != nil {
		return Record{}, fmt.Errorf("s3: get %s: %w", recordID, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(io.LimitReader(out.Body, maxResponseSize))
	if err != nil {
		return Record{}, fmt.Errorf("s3: read %s: %w", recordID, err)
	}

	doc := make(map[string]interface{})
	if err := json.Unmarshal(data, &doc); err != nil {
		return Record{}, fmt.Errorf("s3: decode %s: %w", recordID, err)
	}
	for logical, v := range fields {
		doc[a.fields.External(logical)] = v
	}
	doc["updated_at"] = a.now().UTC().Format(time.RFC3339Nano)

	if err := a.put(ctx, recordID, doc); err != nil {
		return Record{}, err
	}
	return Record{ID: recordID, URL: a.url(recordID)}, nil
}

func (a *S3Archive) put(ctx context.Context, id string, doc map[string]interface{}) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("s3: encode %s: %w", id, err)
	}
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(a.key(id)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("s3: put %s: %w", id, err)
	}
	return nil
}

func (a *S3Archive) key(id string) string {
	if a.prefix == "" {
		return id + ".json"
	}
	return a.prefix + "/" + id + ".json"
}

func (a *S3Archive) url(id string) string {
	if a.baseURL != "" {
		return a.baseURL + "/" + a.key(id)
	}
	return "s3://" + a.bucket + "/" + a.key(id)
}
