package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/facilities-maintenance/internal/core/events"
	"github.com/frahmantamala/facilities-maintenance/pkg/logger"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start background workers",
	Long:  `Start background workers such as notification redelivery and the event bus listener.`,
}

var notificationWorkerCmd = &cobra.Command{
	Use:   "notifications",
	Short: "Retry failed notifications",
	Long:  `Periodically retry failed notification deliveries until they reach the attempt limit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return startNotificationWorker()
	},
}

var eventWorkerCmd = &cobra.Command{
	Use:   "events",
	Short: "Start event bus worker",
	Long:  `Start an event bus that logs every call event, for debugging.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return startEventWorker()
	},
}

var (
	redeliveryOnce bool
)

func startNotificationWorker() error {
	lg := logger.LoggerWrapper()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, appConfig, lg)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		app.Close(closeCtx)
	}()

	if redeliveryOnce {
		sent, err := app.Redeliverer.RunOnce(ctx)
		if err != nil {
			return fmt.Errorf("redelivery failed: %w", err)
		}
		lg.Info("redelivery pass finished", "sent", sent)
		return nil
	}

	lg.Info("notification worker is running. Press Ctrl+C to stop.",
		"delivery_mode", appConfig.Notification.DeliveryMode)
	return app.Redeliverer.Run(ctx)
}

func startEventWorker() error {
	lg := logger.LoggerWrapper()

	eventBus := events.NewEventBus(lg)
	logEvent := func(ctx context.Context, event events.Event) error {
		lg.Info("received event",
			"event_id", event.EventID(),
			"event_type", event.EventType(),
			"payload", event.Payload())
		return nil
	}
	for _, t := range []string{
		events.EventTypeCallCreated,
		events.EventTypeCallAssigned,
		events.EventTypeCallStatusChanged,
		events.EventTypeCallCompleted,
	} {
		eventBus.Subscribe(t, logEvent)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	lg.Info("event bus is running. Press Ctrl+C to stop.")
	<-ctx.Done()

	eventBus.Wait()
	lg.Info("event bus shutdown complete")
	return nil
}

func init() {
	notificationWorkerCmd.Flags().BoolVar(&redeliveryOnce, "once", false, "run a single redelivery pass and exit")

	workerCmd.AddCommand(notificationWorkerCmd)
	workerCmd.AddCommand(eventWorkerCmd)
}
