package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/okello/hornwatch/internal/app"
	"github.com/okello/hornwatch/internal/config"
	"github.com/okello/hornwatch/internal/digest"
	"github.com/okello/hornwatch/internal/logger"
)

var version = "dev"

func main() {
	logger.Init(os.Getenv("DEBUG") == "true")

	root := &cobra.Command{
		Use:          "hornwatch",
		Short:        "News intelligence pipeline for South Sudan and Sudan",
		SilenceUsage: true,
	}

	root.AddCommand(runCmd(), ingestCmd(), digestCmd(), versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newApp() (*app.App, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	a, err := app.New(cfg)
	if err != nil {
		return nil, nil, err
	}
	return a, cfg, nil
}

// runCmd starts the full service: ingestion scheduler, weekly digest timer
// and the monitoring HTTP server.
func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the ingestion service with schedulers and HTTP endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cfg, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := newServer(a, cfg)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					slog.Error("http server stopped", "error", err)
				}
			}()
			slog.Info("service starting", "version", version, "port", cfg.Port,
				"extraction", cfg.ExtractionEnabled(), "mail", cfg.MailEnabled())

			err = a.Run(ctx)

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)

			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

// ingestCmd runs a single pipeline cycle and exits. Useful for cron-style
// deployments and debugging.
func ingestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Run one ingestion cycle and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.Cycle(ctx)
		},
	}
}

// digestCmd builds the weekly digest immediately. By default it prints the
// JSON form; --send dispatches email to the configured recipients.
func digestCmd() *cobra.Command {
	var send bool

	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Build the weekly digest now",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			var d *digest.Digest
			if send {
				d, err = a.RunDigest(time.Now())
			} else {
				d, err = digest.NewBuilder(a.Store).Build(time.Now())
			}
			if err != nil {
				return err
			}

			out, err := digest.RenderJSON(d)
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
	cmd.Flags().BoolVar(&send, "send", false, "dispatch the digest email after building")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("hornwatch", version)
		},
	}
}
