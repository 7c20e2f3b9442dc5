// Command threatdesignerd runs the threat-designer HTTP daemon: the C9
// gin API, its background job executor, and (optionally) the A5
// websocket status push.
//
// Grounded on blackcoderx-falcon's cmd/falcon/main.go cobra root-command
// shape (a long-running Run func, a sibling "version" subcommand with
// build-injected vars) and NGOClaw's gateway main wiring its config,
// logger, and router together before calling ListenAndServe.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/clcummin/threat-designer/internal/agent"
	"github.com/clcummin/threat-designer/internal/api"
	"github.com/clcummin/threat-designer/internal/config"
	"github.com/clcummin/threat-designer/internal/executor"
	"github.com/clcummin/threat-designer/internal/llmprovider"
	"github.com/clcummin/threat-designer/internal/logging"
	"github.com/clcummin/threat-designer/internal/modelconfig"
	"github.com/clcummin/threat-designer/internal/store"
	"github.com/clcummin/threat-designer/internal/workflow"
	"github.com/clcummin/threat-designer/internal/wsbus"
)

// Version info, injected at build time via -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "threatdesignerd",
	Short: "threatdesignerd runs the STRIDE threat-modeling orchestration core",
	Long: `threatdesignerd is the HTTP daemon behind the threat-designer workflow:
it accepts a system diagram or description, drives the assets/flows/threats/
gaps pipeline through an LLM provider, and serves job status, trail, and
results over a small REST API.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("threatdesignerd %s\n", version)
			fmt.Printf("  commit: %s\n", commit)
			fmt.Printf("  built:  %s\n", date)
		},
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer logger.Sync()

	hub := wsbus.NewHub(logger)
	go hub.Run()

	storeOpts := store.DefaultOptions()
	storeOpts.Logger = logger
	if cfg.Store.MaxJobs > 0 {
		storeOpts.MaxJobs = cfg.Store.MaxJobs
	}
	if cfg.Store.CleanupInterval > 0 {
		storeOpts.CleanupInterval = cfg.Store.CleanupInterval
	}
	if cfg.Store.TerminalTTL > 0 {
		storeOpts.TerminalTTL = cfg.Store.TerminalTTL
	}
	storeOpts.OnStatus = func(status store.JobStatus) {
		hub.Broadcast(wsbus.JobStatusEvent{
			JobID:  status.ID,
			State:  status.State,
			Retry:  status.Retry,
			Detail: status.Detail,
		})
	}
	st := store.New(storeOpts)
	defer st.Stop()

	factory, err := buildFactory(cmd.Context(), cfg.Model, logger)
	if err != nil {
		return fmt.Errorf("building model factory: %w", err)
	}

	wfDeps := workflow.Deps{Store: st, Factory: factory, Logger: logger}
	wfDeps.Runner = executor.NewAgentRunner(agent.Deps{Store: st, Factory: factory, Logger: logger})
	ex := executor.New(wfDeps)

	router := api.NewRouter(api.Deps{
		Executor:     ex,
		Store:        st,
		Logger:       logger,
		UploadBucket: cfg.Server.UploadBucket,
		WSHandler:    gin.WrapF(hub.HandlerFunc()),
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("threatdesignerd listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// buildFactory constructs the single llmprovider.Factory the daemon uses
// for every stage, per spec.md §4.5's provider-selection rule.
func buildFactory(ctx context.Context, m config.ModelConfig, logger *zap.Logger) (*llmprovider.Factory, error) {
	rc, err := m.RuntimeConfig()
	if err != nil {
		return nil, err
	}

	switch rc.Provider {
	case modelconfig.ProviderBedrock:
		creds, err := m.BedrockCredentials()
		if err != nil {
			return nil, err
		}
		return llmprovider.NewFactory(ctx, rc, creds, logger)
	case modelconfig.ProviderOpenAI:
		creds, err := m.OpenAICredentials()
		if err != nil {
			return nil, err
		}
		return llmprovider.NewOpenAIFactory(rc, creds, logger)
	default:
		return nil, fmt.Errorf("threatdesignerd: unknown model provider %q", rc.Provider)
	}
}
