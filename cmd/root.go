// Package cmd implements the rpacrawler command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/rpa-crawler/internal/app"
	"github.com/JakeFAU/rpa-crawler/internal/config"
	"github.com/JakeFAU/rpa-crawler/internal/crawler"
	"github.com/JakeFAU/rpa-crawler/internal/sources"
)

// appKeyType is the key for storing the App in the command context.
type appKeyType string

const appKey appKeyType = "app"

// App is the surface subcommands use. Tests inject a fake through newApp.
type App interface {
	Logger() *zap.Logger
	Serve(ctx context.Context, withWorker bool) error
	RunWorker(ctx context.Context) error
	Migrate(ctx context.Context) error
	Enqueue(ctx context.Context, srcs ...crawler.Source) ([]crawler.Job, error)
	Collect(ctx context.Context, source crawler.Source) (sources.Result, error)
	Probe(ctx context.Context, source crawler.Source) (int, error)
	Close(ctx context.Context) error
}

// newApp is the application factory.
var newApp = func(ctx context.Context, cfgFile string) (App, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	return app.Build(ctx, cfg)
}

// session holds the App built for one invocation so it can be closed even
// when the subcommand fails.
type session struct {
	app App
}

func (s *session) close() error {
	if s.app == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.app.Close(ctx)
}

func newRootCmd(s *session) *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "rpacrawler",
		Short: "Asynchronous crawl jobs for the scrapethissite sandbox pages.",
		Long: `rpacrawler accepts crawl requests over HTTP, hands them to workers
through a message queue, and stores the scraped records and job lifecycle
in Postgres.`,
		Version:       app.Version,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			s.app = appInstance
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (env and .env apply on top)")

	cmd.AddCommand(
		newServeCmd(),
		newWorkerCmd(),
		newMigrateCmd(),
		newEnqueueCmd(),
		newCollectCmd(),
	)
	return cmd
}

// run executes args against a fresh command tree and closes whatever App it
// built.
func run(ctx context.Context, args []string, out io.Writer) error {
	s := &session{}
	root := newRootCmd(s)
	root.SetArgs(args)
	root.SetOut(out)
	err := root.ExecuteContext(ctx)
	return errors.Join(err, s.close())
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// parseSources expands "all" and rejects unknown names.
func parseSources(args []string) ([]crawler.Source, error) {
	var out []crawler.Source
	seen := make(map[crawler.Source]bool)
	for _, arg := range args {
		if arg == "all" {
			for _, s := range crawler.Sources() {
				if !seen[s] {
					seen[s] = true
					out = append(out, s)
				}
			}
			continue
		}
		s, err := crawler.ParseSource(arg)
		if err != nil {
			return nil, err
		}
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out, nil
}

// Execute runs the root command until it returns or a termination signal
// arrives.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
