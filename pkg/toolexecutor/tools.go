package toolexecutor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harun/quill/pkg/adapters"
)

// Tool names. These are the only names the agent may use.
const (
	ToolCreateRecord = "create_record"
	ToolUpdateRecord = "update_record"
	ToolScheduleSend = "schedule_send"
	ToolSearchAsset  = "search_asset"
	ToolPostMessage  = "post_message"
)

// AllowList is the fixed set of tool names.
var AllowList = []string{
	ToolCreateRecord,
	ToolUpdateRecord,
	ToolScheduleSend,
	ToolSearchAsset,
	ToolPostMessage,
}

// approvalTools are allow-listed tools that always wait for approval, whether
// or not an adapter is configured for them.
var approvalTools = map[string]bool{
	ToolScheduleSend: true,
}

// IsAllowListed reports whether name is one of the fixed tool names.
func IsAllowListed(name string) bool {
	for _, allowed := range AllowList {
		if allowed == name {
			return true
		}
	}
	return false
}

// AlwaysRequiresApproval reports whether the allow-listed tool name sends
// customer-facing communication.
func AlwaysRequiresApproval(name string) bool {
	return approvalTools[name]
}

// Adapters binds tools to external services. Tools whose adapter is nil are
// not registered.
type Adapters struct {
	Archive   adapters.Archive
	Scheduler adapters.Scheduler
	Search    adapters.AssetSearch
	Notifier  adapters.Notifier
	Now       func() time.Time
}

var recordParameters = []ToolParameter{
	{Name: "title", Type: "string", Description: "Artifact title"},
	{Name: "summary", Type: "string", Description: "One or two sentence summary"},
	{Name: "body", Type: "string", Description: "Full artifact content"},
	{Name: "type", Type: "string", Description: "Artifact type such as newsletter, social or press_release"},
	{Name: "status", Type: "string", Description: "Editorial status shown in the archive"},
	{Name: "channels", Type: "array", Items: "string", Description: "Distribution channels"},
	{Name: "tags", Type: "array", Items: "string", Description: "Free-form tags"},
	{Name: "url", Type: "string", Description: "Related link"},
}

// RegisterMarketingTools registers the allow-listed tools backed by a.
func RegisterMarketingTools(e *Executor, a Adapters) error {
	now := a.Now
	if now == nil {
		now = time.Now
	}

	var defs []ToolDefinition

	if a.Archive != nil {
		// The archive location comes from the tenant, never from the caller.
		createParams := append([]ToolParameter(nil), recordParameters...)
		createParams[0].Required = true // title

		defs = append(defs,
			ToolDefinition{
				Name:        ToolCreateRecord,
				Description: "Create a record in the content archive and return its id and url.",
				Parameters:  createParams,
				Handler:     createRecordHandler(a.Archive),
			},
			ToolDefinition{
				Name:        ToolUpdateRecord,
				Description: "Update fields of an existing archive record.",
				Parameters: append([]ToolParameter{
					{Name: "record_id", Type: "string", Description: "Id returned by create_record", Required: true},
				}, recordParameters...),
				Handler: updateRecordHandler(a.Archive),
			},
		)
	}

	if a.Scheduler != nil {
		defs = append(defs, ToolDefinition{
			Name:        ToolScheduleSend,
			Description: "Schedule a customer-facing email send. Requires human approval.",
			Parameters: []ToolParameter{
				{Name: "subject", Type: "string", Description: "Email subject line", Required: true},
				{Name: "content", Type: "string", Description: "Email HTML or markdown content", Required: true},
				{Name: "send_at", Type: "string", Description: "RFC 3339 send time; defaults to the tenant send schedule"},
			},
			Handler:          scheduleSendHandler(a.Scheduler, now),
			RequiresApproval: AlwaysRequiresApproval(ToolScheduleSend),
		})
	}

	if a.Search != nil {
		defs = append(defs, ToolDefinition{
			Name:        ToolSearchAsset,
			Description: "Find a media asset and return its id and url.",
			Parameters: []ToolParameter{
				{Name: "query", Type: "string", Description: "Search expression", Required: true},
			},
			Handler: searchAssetHandler(a.Search),
		})
	}

	if a.Notifier != nil {
		defs = append(defs, ToolDefinition{
			Name:        ToolPostMessage,
			Description: "Post an internal team notification.",
			Parameters: []ToolParameter{
				{Name: "text", Type: "string", Description: "Message text", Required: true},
				{Name: "channel", Type: "string", Description: "Channel; defaults to the tenant notification channel"},
			},
			Handler: postMessageHandler(a.Notifier),
		})
	}

	for _, def := range defs {
		if err := e.RegisterTool(def); err != nil {
			return err
		}
	}
	return nil
}

func createRecordHandler(archive adapters.Archive) ToolHandler {
	return func(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
		var parentID string
		if rc := RunContextFromContext(ctx); rc != nil {
			parentID = rc.ArchiveParentID
		}
		if parentID == "" {
			return nil, errors.New("archive parent is not configured for this tenant")
		}

		record, err := archive.CreateRecord(ctx, parentID, recordFields(params))
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"id": record.ID, "url": record.URL}, nil
	}
}

func updateRecordHandler(archive adapters.Archive) ToolHandler {
	return func(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
		recordID, _ := params["record_id"].(string)
		fields := recordFields(params, "record_id")
		if len(fields) == 0 {
			return nil, errors.New("no fields to update")
		}

		record, err := archive.UpdateRecord(ctx, recordID, fields)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"id": record.ID, "url": record.URL}, nil
	}
}

func scheduleSendHandler(scheduler adapters.Scheduler, now func() time.Time) ToolHandler {
	return func(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
		subject, _ := params["subject"].(string)
		content, _ := params["content"].(string)

		sendAt, err := resolveSendAt(ctx, params, now())
		if err != nil {
			return nil, err
		}

		scheduled, err := scheduler.ScheduleSend(ctx, adapters.SendRequest{
			Subject: subject,
			Content: content,
			SendAt:  sendAt,
		})
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"id":      scheduled.ID,
			"status":  scheduled.Status,
			"url":     scheduled.URL,
			"send_at": scheduled.SendAt.Format(time.RFC3339),
		}, nil
	}
}

func resolveSendAt(ctx context.Context, params map[string]interface{}, now time.Time) (time.Time, error) {
	if raw, _ := params["send_at"].(string); raw != "" {
		sendAt, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid send_at %q: %w", raw, err)
		}
		return sendAt, nil
	}

	rc := RunContextFromContext(ctx)
	if rc == nil || rc.SendSchedule == "" {
		return time.Time{}, errors.New("send_at is required when the tenant has no send schedule")
	}
	return adapters.NextSendSlot(rc.SendSchedule, rc.Timezone, now)
}

func searchAssetHandler(search adapters.AssetSearch) ToolHandler {
	return func(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
		query, _ := params["query"].(string)
		asset, err := search.SearchAsset(ctx, query)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"id":     asset.ID,
			"url":    asset.URL,
			"format": asset.Format,
			"width":  asset.Width,
			"height": asset.Height,
		}, nil
	}
}

func postMessageHandler(notifier adapters.Notifier) ToolHandler {
	return func(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
		text, _ := params["text"].(string)
		channel, _ := params["channel"].(string)
		if channel == "" {
			if rc := RunContextFromContext(ctx); rc != nil {
				channel = rc.NotificationChannel
			}
		}
		if channel == "" {
			return nil, errors.New("notification channel is not configured for this tenant")
		}

		posted, err := notifier.PostMessage(ctx, channel, text)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"id":      posted.ID,
			"status":  posted.Status,
			"channel": posted.Channel,
		}, nil
	}
}

func recordFields(params map[string]interface{}, skip ...string) map[string]interface{} {
	fields := make(map[string]interface{}, len(params))
	for k, v := range params {
		fields[k] = v
	}
	for _, k := range skip {
		delete(fields, k)
	}
	return fields
}
