package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"tickmill/internal/logger"
	"tickmill/internal/strategy"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ChangeListener 在配置变更时被调用。
type ChangeListener func(Snapshot)

// Snapshot 是一次热加载得到的配置快照。
type Snapshot struct {
	Version  int
	LoadedAt time.Time
	Config   Config
}

// Watcher 监听主配置文件并热加载。只有策略参数与回测预算参与
// 热更新：正在执行的任务继续用旧参数，新任务取最新快照。
type Watcher struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []ChangeListener
}

// NewWatcher 读取配置文件并开始监听 FS 事件。
func NewWatcher(path string) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}
	w := &Watcher{
		path: path,
		v:    v,
		snapshot: Snapshot{
			Version:  1,
			LoadedAt: time.Now(),
			Config:   *cfg,
		},
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := w.reload(); err != nil {
			logger.Errorf("[config] 热加载失败 (%s): %v", evt.Name, err)
			return
		}
		w.notify()
	})
	v.WatchConfig()
	return w, nil
}

// Snapshot 返回当前配置快照。
func (w *Watcher) Snapshot() Snapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.snapshot
}

// Params 返回最新的策略参数，供每次新任务启动时取用。
func (w *Watcher) Params() strategy.Params {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.snapshot.Config.Strategy.Params()
}

// Subscribe 注册监听器，并立即收到一次完整快照。
func (w *Watcher) Subscribe(fn ChangeListener) {
	if fn == nil {
		return
	}
	w.mu.Lock()
	w.listeners = append(w.listeners, fn)
	snap := w.snapshot
	w.mu.Unlock()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("[config] 监听器 panic: %v", r)
			}
		}()
		fn(snap)
	}()
}

func (w *Watcher) notify() {
	w.mu.RLock()
	snap := w.snapshot
	listeners := append([]ChangeListener(nil), w.listeners...)
	w.mu.RUnlock()
	for _, fn := range listeners {
		if fn == nil {
			continue
		}
		go func(cb ChangeListener) {
			defer func() {
				if r := recover(); r != nil {
					logger.Errorf("[config] 监听器 panic: %v", r)
				}
			}()
			cb(snap)
		}(fn)
	}
}

func (w *Watcher) reload() error {
	cfg, err := Load(w.path)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.snapshot = Snapshot{
		Version:  w.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Config:   *cfg,
	}
	version := w.snapshot.Version
	w.mu.Unlock()
	logger.Infof("[config] 热加载 %s 完成（v%d）", filepath.Base(w.path), version)
	return nil
}
