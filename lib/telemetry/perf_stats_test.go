package telemetry

import (
	"context"
	"os"
	"testing"

	"github.com/shirou/gopsutil/v4/process"
	"github.com/stretchr/testify/require"
)

func TestIsBrowser(t *testing.T) {
	require.True(t, isBrowser("chrome"))
	require.True(t, isBrowser("Google Chrome Helper"))
	require.True(t, isBrowser("chromium-browser"))
	require.True(t, isBrowser("headless_shell"))
	require.False(t, isBrowser("go"))
	require.False(t, isBrowser("kadai-server"))
}

func TestBrowserStatsWithoutChildren(t *testing.T) {
	ctx := context.Background()
	self, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	require.NoError(t, err)

	count, rss := browserStats(ctx, self)
	require.Zero(t, count)
	require.Zero(t, rss)
}
