package knowledge

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMemoryBank_TopNMostRecentFirst(t *testing.T) {
	b := NewMemoryBank()
	ts := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	b.now = func() time.Time {
		ts = ts.Add(time.Hour)
		return ts
	}

	ctx := context.Background()
	for _, label := range []string{"first", "second", "third", "fourth"} {
		require.NoError(t, b.Write(ctx, "Approved Briefs", label, "body "+label, nil))
	}

	entries, err := b.QueryTopN(ctx, "Approved Briefs", 3)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "fourth", entries[0].Label)
	assert.Equal(t, "third", entries[1].Label)
	assert.Equal(t, "second", entries[2].Label)

	// Unknown category: empty, not an error.
	entries, err = b.QueryTopN(ctx, "Nope", 3)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestContextBlock(t *testing.T) {
	assert.Equal(t, "", ContextBlock(nil))

	block := ContextBlock([]Entry{
		{Label: "Spring brief", Body: "the body", Timestamp: time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC)},
		{Body: "unnamed", Timestamp: time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC)},
	})
	assert.Contains(t, block, "--- KNOWLEDGE BANK REFERENCE ---")
	assert.Contains(t, block, "[KB Entry 1: Spring brief — 14 Feb 2026]")
	assert.Contains(t, block, "[KB Entry 2: Untitled — 3 Jan 2026]")
	assert.Contains(t, block, "--- END KNOWLEDGE BANK ---")
}

func TestContext_NilBankAndEmptyCategory(t *testing.T) {
	ctx := context.Background()
	out, err := Context(ctx, nil, "Approved Briefs", 3)
	require.NoError(t, err)
	assert.Equal(t, "", out)

	out, err = Context(ctx, NewMemoryBank(), "", 3)
	require.NoError(t, err)
	assert.Equal(t, "", out)
}

func setupRedisBank(t *testing.T) (*miniredis.Miniredis, *RedisBank) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	bank, err := NewRedisBank(RedisConfig{Addr: mr.Addr(), MaxPerCategory: 10}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { bank.Close() })
	return mr, bank
}

func TestRedisBank_WriteAndQuery(t *testing.T) {
	_, bank := setupRedisBank(t)
	ctx := context.Background()

	require.NoError(t, bank.Write(ctx, "Approved Copy", "older", "body one", map[string]string{"channel": "CRM"}))
	require.NoError(t, bank.Write(ctx, "Approved Copy", "newer", "body two", nil))

	entries, err := bank.QueryTopN(ctx, "Approved Copy", 5)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	// LPUSH order: newest first.
	assert.Equal(t, "newer", entries[0].Label)
	assert.Equal(t, "older", entries[1].Label)
	assert.Equal(t, "CRM", entries[1].Metadata["channel"])
}

func TestRedisBank_TopNLimit(t *testing.T) {
	_, bank := setupRedisBank(t)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		require.NoError(t, bank.Write(ctx, "Cat", "entry", "b", nil))
	}
	entries, err := bank.QueryTopN(ctx, "Cat", 3)
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	// Default applied when n <= 0.
	entries, err = bank.QueryTopN(ctx, "Cat", 0)
	require.NoError(t, err)
	assert.Len(t, entries, DefaultTopN)
}

func TestRedisBank_SkipsCorruptEntries(t *testing.T) {
	mr, bank := setupRedisBank(t)
	ctx := context.Background()

	require.NoError(t, bank.Write(ctx, "Cat", "good", "body", nil))
	_, err := mr.Lpush(keyPrefix+"Cat", "{not json")
	require.NoError(t, err)

	entries, err := bank.QueryTopN(ctx, "Cat", 5)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "good", entries[0].Label)
}
