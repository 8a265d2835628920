package adapters

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainsnap/internal/ports"
)

func TestTextfileMetricsAdapterWritesGauges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "textfile", "chainsnap.prom")
	adapter := NewTextfileMetricsAdapter(path)

	require.NoError(t, adapter.RecordRun(ports.RunReport{
		Success:    true,
		Finished:   time.Unix(1748736000, 0),
		Duration:   90 * time.Second,
		Downtime:   30 * time.Second,
		ArchiveLen: 2048,
		Height:     15000000,
	}))
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(content)
	assert.Contains(t, text, "chainsnap_last_run_success 1")
	assert.Contains(t, text, "chainsnap_node_downtime_seconds 30")
	assert.Contains(t, text, "chainsnap_archive_bytes 2048")
	assert.Contains(t, text, "chainsnap_block_height 1.5e+07")

	require.NoError(t, adapter.RecordRun(ports.RunReport{Finished: time.Unix(1748736100, 0)}))
	content, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "chainsnap_last_run_success 0")
}

func TestNoopMetricsAdapter(t *testing.T) {
	assert.NoError(t, NoopMetricsAdapter{}.RecordRun(ports.RunReport{Success: true}))
}
