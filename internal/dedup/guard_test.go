package dedup

import (
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omniaagent/crmsync/internal/logger"
)

func quietLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil)
}

func TestLoadAndMark(t *testing.T) {
	guard, err := Load(context.Background(), func(_ context.Context, fn func(string)) error {
		for _, id := range []string{"1", "", "2", "2"} {
			fn(id)
		}
		return nil
	}, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, 2, guard.Len())

	seen, err := guard.Seen(context.Background(), "2")
	require.NoError(t, err)
	assert.True(t, seen)

	seen, _ = guard.Seen(context.Background(), "3")
	assert.False(t, seen)

	guard.Mark("3")
	seen, _ = guard.Seen(context.Background(), "3")
	assert.True(t, seen)
}

func TestLoadFailure(t *testing.T) {
	_, err := Load(context.Background(), func(_ context.Context, fn func(string)) error {
		fn("1")
		return fmt.Errorf("page 2 failed")
	}, quietLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "page 2 failed")
}

func TestPerRecord(t *testing.T) {
	remote := map[string]bool{"10": true}
	var checks []string
	guard := NewPerRecord(func(_ context.Context, id string) (bool, error) {
		checks = append(checks, id)
		if id == "err" {
			return false, fmt.Errorf("timeout")
		}
		return remote[id], nil
	})
	ctx := context.Background()

	seen, err := guard.Seen(ctx, "10")
	require.NoError(t, err)
	assert.True(t, seen)

	seen, _ = guard.Seen(ctx, "10")
	assert.True(t, seen)

	seen, _ = guard.Seen(ctx, "11")
	assert.False(t, seen)
	guard.Mark("11")
	seen, _ = guard.Seen(ctx, "11")
	assert.True(t, seen)

	_, err = guard.Seen(ctx, "err")
	require.Error(t, err)

	assert.Equal(t, []string{"10", "11", "err"}, checks)
}

var (
	_ Guard = (*Preloaded)(nil)
	_ Guard = (*PerRecord)(nil)
)
