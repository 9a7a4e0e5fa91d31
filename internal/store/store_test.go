package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestLog(t *testing.T) *RequestLog {
	t.Helper()
	rl, err := Open(filepath.Join(t.TempDir(), "requests.db"))
	require.NoError(t, err)
	t.Cleanup(func() { rl.Close() })
	return rl
}

func TestInsertAndRecent(t *testing.T) {
	rl := openTestLog(t)
	ctx := context.Background()

	require.NoError(t, rl.Insert(ctx, &Record{
		RequestID:        "chatcmpl-1",
		Provider:         "dev",
		Model:            "dev/default",
		Mode:             "stream",
		StatusCode:       200,
		PromptTokens:     10,
		CompletionTokens: 20,
		TotalTokens:      30,
		DurationMS:       125,
	}))
	require.NoError(t, rl.Insert(ctx, &Record{
		RequestID:    "chatcmpl-2",
		Provider:     "openai",
		Model:        "openai/gpt-4o",
		Mode:         "aggregate",
		StatusCode:   200,
		ErrorMessage: "backend exploded",
	}))

	records, err := rl.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)

	// Newest first.
	assert.Equal(t, "chatcmpl-2", records[0].RequestID)
	assert.Equal(t, "backend exploded", records[0].ErrorMessage)
	assert.Equal(t, "chatcmpl-1", records[1].RequestID)
	assert.Equal(t, 30, records[1].TotalTokens)
	assert.Equal(t, int64(125), records[1].DurationMS)
}

func TestRecent_Limit(t *testing.T) {
	rl := openTestLog(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, rl.Insert(ctx, &Record{
			RequestID: id, Provider: "dev", Model: "m", Mode: "stream", StatusCode: 200,
		}))
	}

	records, err := rl.Recent(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestNilReceiverIsNoOp(t *testing.T) {
	var rl *RequestLog
	assert.NoError(t, rl.Insert(context.Background(), &Record{RequestID: "x"}))
	records, err := rl.Recent(context.Background(), 5)
	assert.NoError(t, err)
	assert.Nil(t, records)
	assert.NoError(t, rl.Close())
}

func TestDuplicateRequestIDRejected(t *testing.T) {
	rl := openTestLog(t)
	ctx := context.Background()

	rec := &Record{RequestID: "dup", Provider: "dev", Model: "m", Mode: "stream"}
	require.NoError(t, rl.Insert(ctx, rec))
	assert.Error(t, rl.Insert(ctx, rec))
}
