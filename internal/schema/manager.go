package schema

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/practice-local/pkg/errors"
	"github.com/jwalitptl/practice-local/pkg/logger"
	"github.com/jwalitptl/practice-local/pkg/metrics"
)

// Manager runs pending schema versions, in order, against an Engine.
type Manager struct {
	versions []Version
	log      *logger.Logger
	metrics  *metrics.Metrics
}

func NewManager(versions []Version, log *logger.Logger, m *metrics.Metrics) (*Manager, error) {
	if err := validateVersions(versions); err != nil {
		return nil, fmt.Errorf("invalid schema declaration: %w", err)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Manager{versions: versions, log: log.Component("schema"), metrics: m}, nil
}

// Latest is the newest declared version number.
func (m *Manager) Latest() int {
	return m.versions[len(m.versions)-1].Number
}

// Pending returns the versions newer than stored, in ascending order.
func (m *Manager) Pending(stored int) []Version {
	var out []Version
	for _, v := range m.versions {
		if v.Number > stored {
			out = append(out, v)
		}
	}
	return out
}

// Upgrade brings the engine to the latest version. Each version commits on
// its own, so a failing transform leaves the engine at the last committed
// version and returns a *errors.MigrationError.
func (m *Manager) Upgrade(ctx context.Context, eng Engine) (int, error) {
	stored, err := eng.Version(ctx)
	if err != nil {
		return 0, &errors.MigrationError{From: 0, To: m.Latest(), Err: fmt.Errorf("failed to read stored version: %w", err)}
	}
	if stored > m.Latest() {
		return stored, &errors.MigrationError{From: stored, To: m.Latest(), Err: fmt.Errorf("stored version is newer than this build")}
	}

	pending := m.Pending(stored)
	if len(pending) == 0 {
		m.log.Debug("schema up to date", "version", stored)
		return stored, nil
	}

	runID := uuid.NewString()
	m.log.Info("upgrading schema", "run", runID, "from", stored, "to", m.Latest())

	current := stored
	for _, v := range pending {
		if err := m.apply(ctx, eng, v); err != nil {
			m.log.Error(err, "schema upgrade aborted", "run", runID, "version", v.Number, "committed", current)
			return current, &errors.MigrationError{From: current, To: v.Number, Err: err}
		}
		current = v.Number
		if m.metrics != nil {
			m.metrics.MigrationsApplied.Inc()
		}
		m.log.Info("schema version applied", "run", runID, "version", v.Number)
	}
	return current, nil
}

func (m *Manager) apply(ctx context.Context, eng Engine, v Version) (err error) {
	tx, err := eng.BeginUpgrade(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin upgrade: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			err = fmt.Errorf("transform panicked: %v", p)
			return
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, c := range v.Collections {
		if err = tx.EnsureCollection(ctx, c); err != nil {
			return fmt.Errorf("failed to declare collection %s: %w", c.Name, err)
		}
	}

	if v.Upgrade != nil {
		if err = v.Upgrade.Apply(ctx, tx); err != nil {
			return fmt.Errorf("transform %d -> %d: %w", v.Upgrade.FromVersion(), v.Upgrade.ToVersion(), err)
		}
	}

	if err = tx.SetVersion(ctx, v.Number); err != nil {
		return fmt.Errorf("failed to record version: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit upgrade: %w", err)
	}
	return nil
}
