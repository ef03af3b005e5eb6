package monitor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/servermon/internal/domain"
	"github.com/hamed0406/servermon/internal/events"
	"github.com/hamed0406/servermon/internal/persist"
)

func (m *Monitor) StatePath() string { return m.state.Path }

// ExportData serializes the current list and refresh interval.
func (m *Monitor) ExportData(ctx context.Context) ([]byte, error) {
	m.ioMu.Lock()
	defer m.ioMu.Unlock()

	all, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}
	return persist.Encode(all, m.sched.Policy().Interval)
}

// ImportData replaces the list and interval with the decoded document and
// requests an immediate pass. On any error the current state is untouched.
// Imports and exports are serialized so the list and interval always come
// from the same document.
func (m *Monitor) ImportData(ctx context.Context, data []byte) error {
	m.ioMu.Lock()
	defer m.ioMu.Unlock()

	endpoints, interval, err := persist.Decode(data)
	if err != nil {
		m.logger.Warn("import_failed", zap.Error(err))
		return err
	}
	return m.replace(ctx, endpoints, interval, "upload")
}

// Export writes the state file. A failure leaves memory as it is.
func (m *Monitor) Export(ctx context.Context) error {
	m.ioMu.Lock()
	defer m.ioMu.Unlock()

	all, err := m.store.List(ctx)
	if err != nil {
		return err
	}
	interval := m.sched.Policy().Interval
	if err := m.state.Save(all, interval); err != nil {
		m.logger.Error("export_failed", zap.String("path", m.state.Path), zap.Error(err))
		return err
	}
	m.logger.Info("state_exported",
		zap.String("path", m.state.Path),
		zap.Int("endpoints", len(all)),
		zap.Duration("interval", interval),
	)
	return nil
}

// Import loads the state file. A missing or malformed file is reported and
// the current state is left unchanged.
func (m *Monitor) Import(ctx context.Context) error {
	m.ioMu.Lock()
	defer m.ioMu.Unlock()

	endpoints, interval, err := m.state.Load()
	if err != nil {
		m.logger.Warn("import_failed", zap.String("path", m.state.Path), zap.Error(err))
		return err
	}
	return m.replace(ctx, endpoints, interval, m.state.Path)
}

func (m *Monitor) replace(ctx context.Context, endpoints []domain.Endpoint, interval time.Duration, source string) error {
	if err := m.store.Replace(ctx, endpoints); err != nil {
		m.logger.Warn("import_failed", zap.String("source", source), zap.Error(err))
		return err
	}
	m.sched.SetInterval(interval)
	m.logger.Info("state_imported",
		zap.String("source", source),
		zap.Int("endpoints", len(endpoints)),
		zap.Duration("interval", interval),
	)
	m.hub.Publish(events.Event{Type: events.StateImported, Endpoints: len(endpoints)})
	m.TriggerCheckNow()
	return nil
}
