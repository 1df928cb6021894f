package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/expreg-labs/expreg/internal/config"
	"github.com/expreg-labs/expreg/internal/logging"
	"github.com/expreg-labs/expreg/internal/registry"
	"github.com/expreg-labs/expreg/internal/schema"
	"github.com/expreg-labs/expreg/internal/store"
)

// session is one loaded experiment log plus its provenance store.
type session struct {
	reg    *registry.Registry
	store  *store.Store
	source string

	// loadErr holds record-level failures (duplicate names, unparseable
	// headers). The registry is usable regardless.
	loadErr error

	recording atomic.Bool
}

// openSession loads the configured log, opens the store and replays the
// run-state transitions recorded by earlier invocations. Transitions made
// after openSession returns are recorded.
func openSession(ctx context.Context) (*session, error) {
	sch, err := schema.ForVersion(config.Get(config.KeySchemaVersion))
	if err != nil {
		return nil, err
	}

	path := config.Get(config.KeyFile)
	source, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}

	f, err := os.Open(source)
	if err != nil {
		return nil, fmt.Errorf("opening experiment log: %w", err)
	}
	defer func() { _ = f.Close() }()

	logger := logging.FromContext(ctx)
	s := &session{source: source}
	s.reg = registry.New(
		registry.WithSchema(sch),
		registry.WithLogger(logger.With("log", path)),
		registry.WithTransitionHook(func(tr registry.Transition) {
			if !s.recording.Load() {
				return
			}
			if err := s.store.RecordTransition(ctx, s.source, tr); err != nil {
				logger.Error("recording transition", "transition", tr.String(), "error", err)
			}
		}),
	)
	s.loadErr = s.reg.Load(f)
	if s.loadErr != nil {
		var rec *registry.RecordError
		if !errors.As(s.loadErr, &rec) {
			return nil, fmt.Errorf("reading %s: %w", path, s.loadErr)
		}
		logger.Warn("some records were rejected", "error", s.loadErr)
	}

	s.store, err = store.Open(ctx, config.Get(config.KeyDB), logger)
	if err != nil {
		return nil, fmt.Errorf("opening provenance store: %w", err)
	}
	trs, err := s.store.Transitions(ctx, source)
	if err != nil {
		_ = s.store.Close()
		return nil, err
	}
	if err := s.reg.Replay(trs); err != nil {
		logger.Warn("recorded transitions no longer apply", "error", err)
	}
	s.recording.Store(true)
	return s, nil
}

func (s *session) Close() error {
	return s.store.Close()
}
