package sop

import (
	"context"

	"go.uber.org/zap"

	"github.com/goliatone/go-sop/pkg/activity"
)

// WithActivityHooks attaches activity hooks to the Manager. Nil hooks are
// dropped.
func WithActivityHooks(hooks activity.Hooks) Option {
	hooks = activity.Compact(hooks)
	return func(cfg *managerConfig) {
		cfg.activityHooks = hooks
	}
}

// WithActivityConfig sets the channel, actor and tenant stamped on activity
// events that leave them blank.
func WithActivityConfig(c activity.Config) Option {
	return func(cfg *managerConfig) {
		cfg.activityConfig = c
	}
}

// ActivityHooks returns a copy of the configured activity hooks.
func (m *Manager) ActivityHooks() activity.Hooks {
	if m == nil {
		return nil
	}
	return activity.Compact(m.activityHooks)
}

// recordActivity forwards evt to the hooks. Hook failures are logged only.
func (m *Manager) recordActivity(evt activity.Event) {
	if !m.activity.Enabled() {
		return
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = m.now()
	}
	if err := m.activity.Emit(context.Background(), evt); err != nil {
		m.logger.Warn("activity hook failed",
			zap.String("verb", evt.Verb),
			zap.String("object_id", evt.ObjectID),
			zap.Error(err),
		)
	}
}

func (m *Manager) entityActivity(kind, action, id string, changed []string) {
	m.recordActivity(activity.BuildEntityEvent(action, activity.EventInput{
		ObjectType: kind,
		ObjectID:   id,
		Changed:    changed,
	}))
}

func (m *Manager) stateActivity(action, version string, metadata map[string]any) {
	m.recordActivity(activity.BuildStateEvent(action, activity.EventInput{
		ObjectID: m.cfg.Namespace + m.cfg.DataKey,
		Version:  version,
		Metadata: metadata,
	}))
}
