package observability

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/harun/quill/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit", "audit.jsonl")
	require.NoError(t, InitAuditLogger(path, logger.Rotation{}))

	ctx := context.Background()
	RecordToolAudit(ctx, "create_record", "acme", "success", nil)
	RecordLedgerAudit(ctx, "CMP-261015-K7QZ", "acme", "intake", "drafted")
	RecordApprovalAudit(ctx, "CMP-261015-K7QZ", "acme", "approved", map[string]interface{}{"actions": 1})
	require.NoError(t, GetAuditLogger().Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)

	var event map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &event))
	assert.Equal(t, "ledger", event["type"])
	assert.Equal(t, "acme", event["actor"])
	assert.Equal(t, "transition:CMP-261015-K7QZ", event["action"])
	assert.Equal(t, "drafted", event["metadata"].(map[string]interface{})["to"])
}

func TestAuditLogger_Rotation(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "audit")
	path := filepath.Join(dir, "audit.jsonl")
	require.NoError(t, InitAuditLogger(path, logger.Rotation{MaxBytes: 512, MaxBackups: 3}))

	ctx := context.Background()
	for i := 0; i < 40; i++ {
		RecordToolAudit(ctx, "schedule_send", "acme", "success", map[string]interface{}{"n": i})
	}
	require.NoError(t, GetAuditLogger().Close())

	backups, err := filepath.Glob(filepath.Join(dir, "audit-*.jsonl"))
	require.NoError(t, err)
	assert.Len(t, backups, 3)

	// Every kept file holds whole events, newest last in the active file.
	var last float64
	for _, name := range append(backups, path) {
		data, err := os.ReadFile(name)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(data), 512, name)
		for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
			var event map[string]interface{}
			require.NoError(t, json.Unmarshal([]byte(line), &event), name)
			assert.Equal(t, "execute:schedule_send", event["action"])
			last = event["metadata"].(map[string]interface{})["n"].(float64)
		}
	}
	assert.Equal(t, float64(39), last)
}
