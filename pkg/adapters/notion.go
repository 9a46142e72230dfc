package adapters

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
)

const (
	defaultNotionBaseURL = "https://api.notion.com"
	defaultNotionVersion = "2022-06-28"
	notionTextLimit      = 2000
)

// NotionConfig configures NotionArchive.
type NotionConfig struct {
	APIKey  string
	BaseURL string
	Version string
	// ParentType is "database_id" (default) or "page_id".
	ParentType string
	FieldMap   FieldMap
	HTTPClient *http.Client
}

// NotionArchive writes artifacts as pages in a Notion database. The body is
// stored as paragraph blocks, every other field as a page property.
type NotionArchive struct {
	client     *restClient
	fields     FieldMap
	parentType string
}

// NewNotionArchive creates a Notion archive client.
func NewNotionArchive(cfg NotionConfig) (*NotionArchive, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("notion: api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultNotionBaseURL
	}
	if cfg.Version == "" {
		cfg.Version = defaultNotionVersion
	}
	if cfg.ParentType == "" {
		cfg.ParentType = "database_id"
	}
	if cfg.FieldMap == nil {
		cfg.FieldMap = DefaultFieldMap()
	}

	apiKey, version := cfg.APIKey, cfg.Version
	return &NotionArchive{
		client: newRESTClient("notion", cfg.BaseURL, cfg.HTTPClient, func(req *http.Request) {
			req.Header.Set("Authorization", "Bearer "+apiKey)
			req.Header.Set("Notion-Version", version)
		}),
		fields:     cfg.FieldMap,
		parentType: cfg.ParentType,
	}, nil
}

type notionPage struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// CreateRecord creates a page under parentID.
func (n *NotionArchive) CreateRecord(ctx context.Context, parentID string, fields map[string]interface{}) (Record, error) {
	if parentID == "" {
		return Record{}, errors.New("notion: parent id is required")
	}

	payload := map[string]interface{}{
		"parent":     map[string]string{n.parentType: parentID},
		"properties": n.properties(fields),
	}
	if body := stringField(fields, FieldBody); body != "" {
		payload["children"] = paragraphBlocks(body)
	}

	var page notionPage
	if err := n.client.do(ctx, http.MethodPost, "/v1/pages", payload, &page); err != nil {
		return Record{}, err
	}
	return Record{ID: page.ID, URL: page.URL}, nil
}

// UpdateRecord patches page properties and appends body paragraphs.
func (n *NotionArchive) UpdateRecord(ctx context.Context, recordID string, fields map[string]interface{}) (Record, error) {
	if recordID == "" {
		return Record{}, errors.New("notion: record id is required")
	}

	var page notionPage
	props := n.properties(fields)
	if len(props) > 0 {
		payload := map[string]interface{}{"properties": props}
		if err := n.client.do(ctx, http.MethodPatch, "/v1/pages/"+url.PathEscape(recordID), payload, &page); err != nil {
			return Record{}, err
		}
	}

	if body := stringField(fields, FieldBody); body != "" {
		payload := map[string]interface{}{"children": paragraphBlocks(body)}
		if err := n.client.do(ctx, http.MethodPatch, "/v1/blocks/"+url.PathEscape(recordID)+"/children", payload, nil); err != nil {
			return Record{}, err
		}
	}

	if page.ID == "" {
		page.ID = recordID
	}
	return Record{ID: page.ID, URL: page.URL}, nil
}

// properties converts logical fields into Notion property values.
func (n *NotionArchive) properties(fields map[string]interface{}) map[string]interface{} {
	props := make(map[string]interface{}, len(fields))
	for logical := range fields {
		name := n.fields.External(logical)
		switch logical {
		case FieldBody:
			continue
		case FieldTitle:
			props[name] = map[string]interface{}{"title": richText(stringField(fields, logical))}
		case FieldStatus, FieldType:
			if v := stringField(fields, logical); v != "" {
				props[name] = map[string]interface{}{"select": map[string]string{"name": v}}
			}
		case FieldChannels, FieldTags:
			values := stringsField(fields, logical)
			options := make([]map[string]string, 0, len(values))
			for _, v := range values {
				options = append(options, map[string]string{"name": v})
			}
			props[name] = map[string]interface{}{"multi_select": options}
		case FieldURL:
			if v := stringField(fields, logical); v != "" {
				props[name] = map[string]interface{}{"url": v}
			}
		default:
			props[name] = map[string]interface{}{"rich_text": richText(stringField(fields, logical))}
		}
	}
	return props
}

func richText(content string) []map[string]interface{} {
	if runes := []rune(content); len(runes) > notionTextLimit {
		content = string(runes[:notionTextLimit])
	}
	return []map[string]interface{}{
		{"type": "text", "text": map[string]string{"content": content}},
	}
}

// paragraphBlocks splits body on blank lines and caps each block at the
// Notion text limit.
func paragraphBlocks(body string) []map[string]interface{} {
	var blocks []map[string]interface{}
	for _, para := range strings.Split(body, "\n\n") {
		runes := []rune(strings.TrimSpace(para))
		for len(runes) > 0 {
			n := len(runes)
			if n > notionTextLimit {
				n = notionTextLimit
			}
			chunk := string(runes[:n])
			runes = runes[n:]
			blocks = append(blocks, map[string]interface{}{
				"object": "block",
				"type":   "paragraph",
				"paragraph": map[string]interface{}{
					"rich_text": richText(chunk),
				},
			})
		}
	}
	return blocks
}
