package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/genglossary/genglossary/internal/config"
	"github.com/genglossary/genglossary/internal/llm"
	"github.com/genglossary/genglossary/internal/logbus"
	"github.com/genglossary/genglossary/internal/pipeline"
	"github.com/genglossary/genglossary/internal/registry"
	"github.com/genglossary/genglossary/internal/runner"
	"github.com/genglossary/genglossary/internal/storage/sqlite"
	"github.com/genglossary/genglossary/internal/types"
)

// newRunCmd executes one pipeline run in-process and streams its log events
// to stdout. Ctrl-C cancels the run and waits for cleanup.
func newRunCmd() *cobra.Command {
	var scopeFlag string

	cmd := &cobra.Command{
		Use:   "run <project>",
		Short: "Execute a pipeline run for a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := setupLogger(cfg)

			scope := types.RunScope(scopeFlag)
			if !scope.IsValid() {
				return fmt.Errorf("%w: unknown run scope %q", types.ErrValidation, scopeFlag)
			}

			reg, err := registry.Open(cfg.RegistryPath())
			if err != nil {
				return err
			}
			defer func() { _ = reg.Close() }()

			p, err := reg.GetByName(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			db, err := sqlite.Open(p.DBPath)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			llmCfg := llm.Config{
				Provider: cfg.LLMProvider,
				Model:    cfg.LLMModel,
				BaseURL:  cfg.LLMBaseURL,
				Timeout:  cfg.LLMTimeout,
			}
			if p.LLMProvider != "" {
				llmCfg.Provider = p.LLMProvider
			}
			if p.LLMModel != "" {
				llmCfg.Model = p.LLMModel
			}
			if p.LLMBaseURL != "" {
				llmCfg.BaseURL = p.LLMBaseURL
			}
			client, err := llm.New(llmCfg)
			if err != nil {
				return err
			}
			if !client.Available(cmd.Context()) {
				return fmt.Errorf("%w: provider %s at %s", types.ErrLLMUnavailable, llmCfg.Provider, llmCfg.BaseURL)
			}

			bus := logbus.New()
			exec := pipeline.New(client, pipeline.WithBatchSize(cfg.BatchSize))
			mgr := runner.New(db, bus, exec, p.DocRoot, logger)

			run, err := mgr.StartRun(cmd.Context(), scope, "cli")
			if err != nil {
				return err
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			if err := followRun(cmd.Context(), db, mgr, run.ID, sigCh, os.Stdout, logger); err != nil {
				return err
			}
			mgr.Wait()

			var final *types.Run
			err = db.WithConn(cmd.Context(), func(c *sqlite.Conn) error {
				final, err = sqlite.GetRun(cmd.Context(), c, run.ID)
				return err
			})
			if err != nil {
				return err
			}
			fmt.Printf("run %d finished with status %s\n", final.ID, final.Status)
			if final.Status == types.RunFailed {
				return fmt.Errorf("run failed: %s", final.ErrorMessage)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&scopeFlag, "scope", string(types.ScopeFull), "run scope: full, extract, generate, review, refine")
	return cmd
}

// followRun prints a run's log events to out until the terminal marker
// arrives. The bus does not replay: a run that finished before the
// subscription existed never delivers its marker, so the status is re-read
// after subscribing and a terminal run skips the wait entirely.
func followRun(ctx context.Context, db *sqlite.DB, mgr *runner.Manager, runID int64, sigCh <-chan os.Signal, out io.Writer, logger zerolog.Logger) error {
	events, unsubscribe := mgr.Bus().Subscribe(runID)
	defer unsubscribe()

	var run *types.Run
	err := db.WithConn(ctx, func(c *sqlite.Conn) error {
		var err error
		run, err = sqlite.GetRun(ctx, c, runID)
		return err
	})
	if err != nil {
		return err
	}
	if run.Status.IsTerminal() {
		return nil
	}

	for {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "cancelling...")
			if err := mgr.Cancel(ctx, runID); err != nil {
				logger.Warn().Err(err).Msg("cancel failed")
			}
		case e, ok := <-events:
			if !ok || e.Complete {
				return nil
			}
			if e.Step != "" {
				fmt.Fprintf(out, "[%s] %s: %d/%d %s\n", e.Level, e.Step, e.ProgressCurrent, e.ProgressTotal, e.CurrentTerm)
			} else {
				fmt.Fprintf(out, "[%s] %s\n", e.Level, e.Message)
			}
		}
	}
}

// newCancelCmd asks a running gg serve process to cancel a run.
func newCancelCmd() *cobra.Command {
	var serverAddr string

	cmd := &cobra.Command{
		Use:   "cancel <project-id> <run-id>",
		Short: "Cancel an active run on a running server",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if serverAddr == "" {
				serverAddr = cfg.ListenAddr
			}
			url := fmt.Sprintf("http://%s/projects/%s/runs/%s", serverAddr, args[0], args[1])
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodDelete, url, nil)
			if err != nil {
				return err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return err
			}
			defer func() { _ = resp.Body.Close() }()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("server returned %s", resp.Status)
			}
			fmt.Println("cancelled")
			return nil
		},
	}

	cmd.Flags().StringVar(&serverAddr, "server", "", "server address (defaults to listen_addr from config)")
	return cmd
}
