package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher 监听配置文件变化，重新加载并回调。
// 监听所在目录，以兼容编辑器的 rename 式保存。
type Watcher struct {
	Path     string
	Cooldown time.Duration // 两次重载的最小间隔
	Log      *zap.Logger
}

// Run 阻塞直到 ctx 结束。只有通过校验的配置才会回调 onUpdate。
func (w Watcher) Run(ctx context.Context, onUpdate func(AppConfig)) error {
	log := w.Log
	if log == nil {
		log = zap.NewNop()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()

	target := filepath.Clean(w.Path)
	if err := fw.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("failed to watch config dir: %w", err)
	}

	var (
		lastReload time.Time
		deferred   *time.Timer
		deferredC  <-chan time.Time
	)
	defer func() {
		if deferred != nil {
			deferred.Stop()
		}
	}()
	reload := func() {
		lastReload = time.Now()
		cfg, err := LoadWithEnvOverrides(w.Path)
		if err != nil {
			log.Warn("config reload rejected", zap.String("path", w.Path), zap.Error(err))
			return
		}
		log.Info("config reloaded", zap.String("path", w.Path))
		if onUpdate != nil {
			onUpdate(cfg)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deferredC:
			// 冷却期内的修改在冷却结束后补一次加载
			deferred, deferredC = nil, nil
			reload()
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) {
				continue
			}
			if wait := w.Cooldown - time.Since(lastReload); wait > 0 {
				if deferred == nil {
					deferred = time.NewTimer(wait)
					deferredC = deferred.C
				}
				continue
			}
			reload()
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Warn("config watcher error", zap.Error(err))
		}
	}
}
