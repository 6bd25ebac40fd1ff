package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"greendrake/realty/internal/api"
	"greendrake/realty/internal/config"
	"greendrake/realty/internal/tasks"
)

// Run modes of the serve command.
const (
	modeBackground = "bg"
	modeAPI        = "api"
	modeAll        = "all"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "realty",
		Short:        "Reservation and inquiry lifecycle engine",
		SilenceUsage: true,
	}
	cmd.AddCommand(serveCmd(), sweepCmd())
	return cmd
}

func serveCmd() *cobra.Command {
	var runMode string

	c := &cobra.Command{
		Use:   "serve",
		Short: "Run the service API and, depending on the mode, the expiry worker and scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateRunMode(runMode); err != nil {
				return err
			}
			cfg, err := config.Load(runMode)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			return serve(cmd.Context(), cfg)
		},
	}

	c.Flags().StringVarP(&runMode, "mode", "m", modeAll, "Run mode: 'api' (service API only), 'bg' (expiry worker and scheduler), 'all' (default)")
	return c
}

func sweepCmd() *cobra.Command {
	var enqueue bool

	c := &cobra.Command{
		Use:   "sweep",
		Short: "Release lapsed deposit reservations once, for use from an external scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(modeBackground)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			ctx := cmd.Context()

			a, err := newApp(ctx, cfg, enqueue)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			if enqueue {
				return enqueueSweep(a)
			}
			count, err := a.expiry.ExpireReservations(ctx)
			fmt.Printf("Released %d reservations\n", count)
			return err
		},
	}

	c.Flags().BoolVar(&enqueue, "enqueue", false, "Enqueue the sweep for the background worker instead of running it here")
	return c
}

func validateRunMode(mode string) error {
	switch mode {
	case modeBackground, modeAPI, modeAll:
		return nil
	default:
		return fmt.Errorf("invalid run mode %q (want %q, %q or %q)", mode, modeAPI, modeBackground, modeAll)
	}
}

func enqueueSweep(a *app) error {
	client := tasks.NewClient(a.rdb)
	defer client.Close()

	task, err := tasks.NewExpiryTask(tasks.TriggerCLI)
	if err != nil {
		return err
	}
	info, err := client.Enqueue(task)
	if err != nil {
		return fmt.Errorf("failed to enqueue expiry sweep: %w", err)
	}
	fmt.Printf("Enqueued expiry sweep %s on queue %s\n", info.ID, info.Queue)
	return nil
}

func serve(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(ctx, cfg, cfg.RunMode != modeAPI)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	// WaitGroup for managing goroutines
	var wg sync.WaitGroup

	// Channel to signal shutdown from Service API
	shutdownChan := make(chan struct{}, 1)

	// Start Service API (always runs)
	serviceRouter := api.SetupServiceRouter(cfg, a.rdb, a.expiry, shutdownChan)
	serviceSrv := &http.Server{
		Addr:    ":" + cfg.ServiceApiPort,
		Handler: serviceRouter,
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		fmt.Printf("Service API listening on :%s\n", cfg.ServiceApiPort)
		if err := serviceSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Service API ListenAndServe error: %v", err)
		}
		fmt.Println("Service API server stopped.")
	}()

	var taskSrv *asynq.Server
	var scheduler *asynq.Scheduler

	fmt.Printf("Starting application in '%s' mode...\n", cfg.RunMode)

	if cfg.RunMode == modeBackground || cfg.RunMode == modeAll {
		fmt.Println("Starting expiry worker...")
		processor := tasks.NewTaskProcessor(cfg, a.expiry)
		var mux *asynq.ServeMux
		taskSrv, mux = tasks.SetupServer(a.rdb, processor)
		if err := taskSrv.Start(mux); err != nil {
			return fmt.Errorf("failed to start task server: %w", err)
		}

		scheduler, err = tasks.NewScheduler(a.rdb, cfg)
		if err != nil {
			taskSrv.Shutdown()
			return err
		}
		if err := scheduler.Start(); err != nil {
			taskSrv.Shutdown()
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		fmt.Printf("\nReceived signal: %s. Shutting down gracefully...\n", sig)
	case <-shutdownChan:
		fmt.Println("\nShutdown requested via Service API. Shutting down gracefully...")
	}

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	fmt.Println("Shutting down Service API server...")
	if err := serviceSrv.Shutdown(ctxShutdown); err != nil {
		log.Printf("Service API server shutdown error: %v", err)
	}
	if scheduler != nil {
		fmt.Println("Shutting down scheduler...")
		scheduler.Shutdown()
	}
	if taskSrv != nil {
		fmt.Println("Shutting down task server...")
		taskSrv.Shutdown()
	}

	fmt.Println("Waiting for servers to stop...")
	wg.Wait()

	fmt.Println("Server gracefully stopped")
	return nil
}
