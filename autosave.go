package sop

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type autoSaver struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// StartAutoSave saves the state every Config.AutoSaveInterval while it is
// dirty, until ctx ends or StopAutoSave is called. It is a no-op when
// auto-save is disabled or already running. Failed saves are logged and
// published on EventError; the state stays dirty and the next tick retries.
func (m *Manager) StartAutoSave(ctx context.Context) error {
	interval := m.cfg.AutoSaveInterval
	if m.cfg.DisableAutoSave || interval <= 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.auto.mu.Lock()
	defer m.auto.mu.Unlock()
	if m.auto.cancel != nil {
		return nil
	}
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.auto.cancel = cancel
	m.auto.done = done

	go m.autoSaveLoop(loopCtx, interval, done)
	m.logger.Debug("auto-save started", zap.Duration("interval", interval))
	return nil
}

func (m *Manager) autoSaveLoop(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !m.IsDirty() {
				continue
			}
			if err := m.Save(ctx); err != nil {
				m.logger.Warn("auto-save failed", zap.Error(err))
			}
		}
	}
}

// StopAutoSave stops the auto-save loop and waits for an in-flight save.
func (m *Manager) StopAutoSave() {
	m.auto.mu.Lock()
	cancel, done := m.auto.cancel, m.auto.done
	m.auto.cancel, m.auto.done = nil, nil
	m.auto.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	m.logger.Debug("auto-save stopped")
}

// AutoSaveRunning reports whether the auto-save loop is active.
func (m *Manager) AutoSaveRunning() bool {
	m.auto.mu.Lock()
	defer m.auto.mu.Unlock()
	return m.auto.cancel != nil
}

// Close stops auto-save and writes any unsaved changes.
func (m *Manager) Close(ctx context.Context) error {
	m.StopAutoSave()
	if !m.IsDirty() {
		return nil
	}
	return m.Save(ctx)
}
