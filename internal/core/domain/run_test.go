package domain

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_TableName(t *testing.T) {
	assert.Equal(t, "pipeline_runs", Run{}.TableName())
}

func TestRun_BeforeCreate(t *testing.T) {
	run := &Run{Mode: RunModeSequence}
	require.NoError(t, run.BeforeCreate(nil))

	assert.NotEqual(t, uuid.Nil, run.ID)
	assert.False(t, run.StartedAt.IsZero())

	id := run.ID
	require.NoError(t, run.BeforeCreate(nil))
	assert.Equal(t, id, run.ID, "existing id must be kept")
}

func TestRun_Lifecycle(t *testing.T) {
	run := NewRun(RunModeSingle, "preprocessing_1", "regex_norm", true)
	assert.Equal(t, RunStatusRunning, run.Status)
	assert.Zero(t, run.Duration())

	run.Complete(3)
	assert.Equal(t, RunStatusCompleted, run.Status)
	assert.Equal(t, 3, run.Records)
	require.NotNil(t, run.FinishedAt)
	assert.GreaterOrEqual(t, run.Duration().Nanoseconds(), int64(0))

	failed := NewRun(RunModeSequence, "cfg.yml", "", false)
	failed.Fail(errors.New("boom"))
	assert.Equal(t, RunStatusFailed, failed.Status)
	assert.Equal(t, "boom", failed.Error)
}

func TestRun_IsValidRunStatus(t *testing.T) {
	tests := []struct {
		status string
		valid  bool
	}{
		{RunStatusRunning, true},
		{RunStatusCompleted, true},
		{RunStatusFailed, true},
		{"uploaded", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			assert.Equal(t, tt.valid, IsValidRunStatus(tt.status))
		})
	}
}

func TestStringList_ValueScan(t *testing.T) {
	value, err := StringList{"regex_norm", "countvec"}.Value()
	require.NoError(t, err)
	assert.Equal(t, `["regex_norm","countvec"]`, value)

	empty, err := StringList(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", empty)

	var fromString StringList
	require.NoError(t, fromString.Scan(`["a","b"]`))
	assert.Equal(t, StringList{"a", "b"}, fromString)

	var fromBytes StringList
	require.NoError(t, fromBytes.Scan([]byte(`["c"]`)))
	assert.Equal(t, StringList{"c"}, fromBytes)

	var fromNil StringList
	require.NoError(t, fromNil.Scan(nil))
	assert.Nil(t, fromNil)

	var bad StringList
	assert.Error(t, bad.Scan(42))
	assert.Error(t, bad.Scan("not json"))
}
