package server

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/genglossary/genglossary/internal/types"
	"github.com/genglossary/genglossary/internal/watcher"
)

// RunWatchers starts a doc_root watcher for every project that has one
// configured, and blocks until ctx is cancelled. No-op when watching is
// disabled.
func (s *Server) RunWatchers(ctx context.Context) error {
	if !s.cfg.WatchDocRoot {
		<-ctx.Done()
		return ctx.Err()
	}

	projects, err := s.reg.List(ctx)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, p := range projects {
		if p.DocRoot == "" {
			continue
		}
		h, err := s.handle(ctx, &p)
		if err != nil {
			s.log.Warn().Err(err).Str("project", p.Name).Msg("watcher skipped, project open failed")
			continue
		}
		projectID := p.ID
		w := watcher.New(p.DocRoot, h.manager, s.cfg.AutoExtract, func() {
			s.markStale(projectID)
		}, s.log.With().Str("project", p.Name).Logger())
		g.Go(func() error { return w.Run(ctx) })
	}
	return g.Wait()
}

// markStale records that a project's source documents changed after its last
// run, by resetting its registry status.
func (s *Server) markStale(projectID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.reg.SetStatus(ctx, projectID, types.ProjectCreated, nil); err != nil {
		s.log.Warn().Err(err).Int64("project_id", projectID).Msg("stale mark failed")
	}
}
