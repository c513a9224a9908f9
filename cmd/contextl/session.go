package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	contextl "github.com/goliatone/go-contextl"
	"github.com/goliatone/go-contextl/pkg/zaplog"
	"go.uber.org/zap"
)

// session is a registry loaded from a definitions file together with the
// diagnostics reported while the command runs.
type session struct {
	registry *contextl.Registry
	loaded   contextl.Loaded
	logger   *zap.Logger
	adapter  *zaplog.Adapter

	mu          sync.Mutex
	diagnostics []contextl.Diagnostic
}

func openSession(opts *rootOptions) (*session, error) {
	logger, err := zaplog.New(opts.logLevel)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(opts.file)
	if err != nil {
		return nil, fmt.Errorf("read definitions: %w", err)
	}

	s := &session{logger: logger, adapter: zaplog.NewAdapter(logger)}
	s.registry = contextl.NewRegistry(
		contextl.WithReporter(contextl.Reporters{s.adapter, contextl.ReporterFunc(s.record)}),
		contextl.WithActivationLogger(s.adapter),
	)

	switch strings.ToLower(filepath.Ext(opts.file)) {
	case ".json":
		s.loaded, err = contextl.LoadDefinitionsJSON(s.registry, raw)
	case ".yaml", ".yml":
		s.loaded, err = contextl.LoadDefinitionsYAML(s.registry, raw)
	default:
		return nil, fmt.Errorf("unsupported definitions format %q", filepath.Ext(opts.file))
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *session) record(_ context.Context, d contextl.Diagnostic) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.diagnostics = append(s.diagnostics, d)
}

func (s *session) takeDiagnostics() []contextl.Diagnostic {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.diagnostics
	s.diagnostics = nil
	return out
}

func (s *session) layers(names []string) ([]*contextl.Layer, error) {
	out := make([]*contextl.Layer, 0, len(names))
	for _, name := range names {
		layer, ok := s.registry.Lookup(strings.TrimSpace(name))
		if !ok {
			return nil, fmt.Errorf("%w: %q", contextl.ErrUnknownLayer, name)
		}
		out = append(out, layer)
	}
	return out, nil
}

func (s *session) close() {
	_ = s.logger.Sync()
}
