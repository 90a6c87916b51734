package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunStatusValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status   RunStatus
		want     string
		terminal bool
	}{
		{RunStatusFetching, "fetching", false},
		{RunStatusLoading, "loading", false},
		{RunStatusComplete, "complete", true},
		{RunStatusFailed, "failed", true},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, string(tt.status))
			assert.Equal(t, tt.terminal, tt.status.Terminal())
		})
	}
}

func TestRun_JSONOmitsEmptyError(t *testing.T) {
	t.Parallel()

	run := Run{
		ID:        "abc",
		Status:    RunStatusComplete,
		StartedAt: time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC),
	}
	data, err := json.Marshal(run)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "error_kind")
	assert.NotContains(t, string(data), "completed_at")
	assert.Contains(t, string(data), `"status":"complete"`)
}
