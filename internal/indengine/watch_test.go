package indengine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchConfigFile_Reloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "indicators.yaml")
	writeFile(t, path, "indicators:\n  - type: rsi\n    params: {period: 3}\n")

	cfg := testConfig()
	cfg.IndicatorConfigFile = path
	svc, _ := newTestService(t, cfg, Deps{Source: newMemSource()})
	require.Len(t, svc.Engine().Configs(), 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, svc.watchConfigFile(ctx, path))

	// Atomic replace, as editors do.
	tmp := path + ".tmp"
	writeFile(t, tmp, "indicators:\n  - type: rsi\n    params: {period: 3}\n  - type: zigzag\n")
	require.NoError(t, os.Rename(tmp, path))

	require.Eventually(t, func() bool { return len(svc.Engine().Configs()) == 2 },
		3*time.Second, 20*time.Millisecond)
}

func TestWatchConfigFile_KeepsSetOnBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "indicators.yaml")
	writeFile(t, path, "indicators:\n  - type: zigzag\n")

	cfg := testConfig()
	cfg.IndicatorConfigFile = path
	svc, _ := newTestService(t, cfg, Deps{Source: newMemSource()})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, svc.watchConfigFile(ctx, path))

	writeFile(t, path, "indicators:\n  - type: zigzag\n    params: {deviation: -1}\n")
	require.Eventually(t, func() bool {
		return counterValue(svc, "file", "rejected") >= 1
	}, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, "zigzag", svc.Engine().Configs()[0].Type)
	assert.Empty(t, svc.Engine().Configs()[0].Params)
}
