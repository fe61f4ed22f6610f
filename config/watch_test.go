package config

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherStopsOnCancel(t *testing.T) {
	w := Watcher{Path: writeTempConfig(t, validYAML)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, w.Run(ctx, nil), context.Canceled)
}

func TestWatcherReloadsValidChanges(t *testing.T) {
	path := writeTempConfig(t, validYAML)
	w := Watcher{Path: path}

	updates := make(chan AppConfig, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, func(c AppConfig) { updates <- c }) }()

	// 等待 watcher 注册完成后再写
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(strings.Replace(validYAML, "numLevels: 3", "numLevels: 100", 1)), 0o644))
	require.NoError(t, os.WriteFile(path, []byte(strings.Replace(validYAML, "numLevels: 3", "numLevels: 4", 1)), 0o644))

	select {
	case cfg := <-updates:
		assert.Equal(t, 4, cfg.MarketMaker.NumLevels)
	case <-time.After(3 * time.Second):
		t.Fatal("no reload observed")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatcherAppliesWriteInsideCooldown(t *testing.T) {
	path := writeTempConfig(t, validYAML)
	w := Watcher{Path: path, Cooldown: 300 * time.Millisecond}

	updates := make(chan AppConfig, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx, func(c AppConfig) { updates <- c }) }()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(strings.Replace(validYAML, "numLevels: 3", "numLevels: 4", 1)), 0o644))

	var last AppConfig
	select {
	case last = <-updates:
	case <-time.After(3 * time.Second):
		t.Fatal("no reload observed")
	}

	// 冷却期内的最后一次保存不能丢
	require.NoError(t, os.WriteFile(path, []byte(strings.Replace(validYAML, "numLevels: 3", "numLevels: 5", 1)), 0o644))
	deadline := time.After(3 * time.Second)
	for last.MarketMaker.NumLevels != 5 {
		select {
		case last = <-updates:
		case <-deadline:
			t.Fatalf("edit inside cooldown never applied, last numLevels=%d", last.MarketMaker.NumLevels)
		}
	}
}
