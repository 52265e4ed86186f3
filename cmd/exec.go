package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"service-queue/config"
	"service-queue/models"
	"service-queue/qrimage"
	"service-queue/services"
	"service-queue/utils"
	"service-queue/worker"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func Start() error {
	cfg := config.LoadConfig()
	logger := utils.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	return NewRootCmd(cfg, logger).Execute()
}

func NewRootCmd(cfg *config.Config, logger *slog.Logger) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "queued",
		Short:         "Service queue engine",
		Long:          "queued runs the location queue workers and offers maintenance commands for the wait-time engine.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&cfg.StoreDriver, "store", cfg.StoreDriver, "storage driver: redis, sqlite or memory")

	rootCmd.AddCommand(
		newServeCmd(cfg, logger),
		newResetCmd(cfg, logger),
		newJoinTokenCmd(cfg, logger),
		newLocationCmd(cfg, logger),
	)
	return rootCmd
}

func newServeCmd(cfg *config.Config, logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run task workers, the reset schedule and the metrics endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	a, err := newApp(ctx, cfg, logger, appOptions{asyncEvents: true})
	if err != nil {
		return err
	}
	defer a.Close()

	redisOpt, err := redisConnOpt(cfg)
	if err != nil {
		return err
	}

	srv := worker.NewServer(redisOpt, cfg.WorkerConcurrency)
	mux := worker.NewServeMux(worker.NewHandlers(a.reset, a.deliveryOrNil(), logger))
	if err := srv.Start(mux); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	defer srv.Shutdown()

	// RESET_CRON_SPEC=off keeps the sweep in process instead of the shared scheduler
	if cfg.ResetCronSpec == "off" {
		go a.reset.Start(ctx, cfg.ResetInterval)
		logger.Info("average reset running in process", "interval", cfg.ResetInterval)
	} else {
		scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{Location: time.UTC})
		entryID, err := worker.RegisterSchedule(scheduler, cfg.ResetCronSpec)
		if err != nil {
			return err
		}
		if err := scheduler.Start(); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		defer scheduler.Shutdown()
		logger.Info("average reset scheduled", "cron", cfg.ResetCronSpec, "entry_id", entryID)
	}

	var metricsSrv *http.Server
	if cfg.EnableMetrics {
		httpMux := http.NewServeMux()
		httpMux.Handle("/metrics", promhttp.Handler())
		httpMux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			if a.redis != nil {
				if err := utils.RedisHealthCheck(r.Context(), a.redis); err != nil {
					http.Error(w, err.Error(), http.StatusServiceUnavailable)
					return
				}
			}
			w.Write([]byte("ok"))
		})
		metricsSrv = &http.Server{
			Addr:              ":" + cfg.MetricsPort,
			Handler:           httpMux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		logger.Info("metrics endpoint listening", "port", cfg.MetricsPort)
	}

	<-ctx.Done()
	logger.Info("shutdown signal received, cleaning up")

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		metricsSrv.Shutdown(shutdownCtx)
	}
	return nil
}

func newResetCmd(cfg *config.Config, logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Run the average reset sweep once and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.ResetTimeout)
			defer cancel()

			a, err := newApp(ctx, cfg, logger, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			result := a.reset.RunReset(ctx)
			if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			if !result.Success {
				return errors.New("average reset failed")
			}
			return nil
		},
	}
}

func newJoinTokenCmd(cfg *config.Config, logger *slog.Logger) *cobra.Command {
	var (
		serviceType string
		expiry      time.Duration
		pngPath     string
		pngSize     int
	)

	cmd := &cobra.Command{
		Use:   "join-token <location-id>",
		Short: "Issue a QR join token for a location",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), cfg, logger, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			if a.join == nil {
				return errors.New("JOIN_TOKEN_SECRET is not set")
			}

			var svc *string
			if serviceType != "" {
				svc = &serviceType
			}
			token, err := a.join.CreateJoinToken(cmd.Context(), args[0], svc, int(expiry/time.Minute))
			if err != nil {
				return err
			}

			if pngPath != "" {
				if err := qrimage.WriteFile(pngPath, token, pngSize); err != nil {
					return err
				}
				logger.Info("qr code written", "path", pngPath)
			}
			return writeJSON(cmd.OutOrStdout(), token)
		},
	}

	cmd.Flags().StringVar(&serviceType, "service-type", "", "optional service type id")
	cmd.Flags().DurationVar(&expiry, "expiry", cfg.JoinTokenExpiry, "token lifetime, in whole minutes")
	cmd.Flags().StringVar(&pngPath, "png", "", "also write the QR code as a PNG file")
	cmd.Flags().IntVar(&pngSize, "size", qrimage.DefaultSize, "PNG size in pixels")
	return cmd
}

func newLocationCmd(cfg *config.Config, logger *slog.Logger) *cobra.Command {
	locationCmd := &cobra.Command{Use: "location", Short: "Location commands"}

	var (
		name     string
		capacity int
		disabled bool
	)
	addCmd := &cobra.Command{
		Use:   "add <location-id>",
		Short: "Register a location",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			locationID, err := services.ParseLocationID(args[0])
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), cfg, logger, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			loc := models.Location{
				ID:               locationID,
				Name:             name,
				QueueEnabled:     !disabled,
				MaxCapacity:      capacity,
				LastAverageReset: time.Now().UTC(),
			}
			if err := a.store.CreateLocation(cmd.Context(), loc); err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), loc)
		},
	}
	addCmd.Flags().StringVar(&name, "name", "", "display name")
	addCmd.Flags().IntVar(&capacity, "capacity", 0, "maximum active entries, 0 for unlimited")
	addCmd.Flags().BoolVar(&disabled, "disabled", false, "create with the queue closed")

	showCmd := &cobra.Command{
		Use:   "show <location-id>",
		Short: "Print the kiosk view of a location queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), cfg, logger, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			snapshot, err := a.display.BuildDisplay(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), snapshot)
		},
	}

	locationCmd.AddCommand(addCmd, showCmd)
	return locationCmd
}

func (a *app) deliveryOrNil() worker.EnvelopePublisher {
	if a.delivery == nil {
		return nil
	}
	return a.delivery
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
