package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/facilities-maintenance/internal/call"
	"github.com/frahmantamala/facilities-maintenance/internal/core/events"
	"github.com/frahmantamala/facilities-maintenance/pkg/logger"
)

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Event management commands",
	Long:  `Manage call events: publish test events and list the known event types`,
}

var publishEventCmd = &cobra.Command{
	Use:   "publish [event-type]",
	Short: "Publish a test call event",
	Long:  `Publish a sample call event to an in-process event bus for debugging`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return publishTestEvent(args[0])
	},
}

var listEventTypesCmd = &cobra.Command{
	Use:   "types",
	Short: "List call event types",
	Run: func(cmd *cobra.Command, args []string) {
		for _, t := range callEventTypes() {
			fmt.Println(t)
		}
	},
}

var (
	eventRegion   string
	eventProvince string
)

func callEventTypes() []string {
	return []string{
		events.EventTypeCallCreated,
		events.EventTypeCallAssigned,
		events.EventTypeCallStatusChanged,
		events.EventTypeCallCompleted,
	}
}

func sampleCallEvent(eventType string) (events.Event, error) {
	assignee := int64(2)
	now := time.Now().UTC()
	snap := events.CallSnapshot{
		ID:           "cli-sample",
		CallNumber:   call.FormatCallNumber(now, 1),
		Title:        "Sample leaking tap",
		Description:  "Published from the event command",
		CallType:     "plumbing",
		Building:     "HQ",
		Province:     eventProvince,
		Region:       eventRegion,
		Priority:     string(call.PriorityMedium),
		Status:       string(call.StatusOpen),
		ReporterID:   1,
		ReportedDate: now,
	}

	switch eventType {
	case events.EventTypeCallCreated:
		return events.NewCallCreatedEvent(snap, snap.ReporterID), nil
	case events.EventTypeCallAssigned:
		snap.Status = string(call.StatusAssigned)
		snap.AssigneeID = &assignee
		return events.NewCallAssignedEvent(snap, 1), nil
	case events.EventTypeCallStatusChanged:
		snap.Status = string(call.StatusInProgress)
		snap.AssigneeID = &assignee
		return events.NewCallStatusChangedEvent(snap, string(call.StatusAssigned), snap.Status, assignee), nil
	case events.EventTypeCallCompleted:
		snap.Status = string(call.StatusResolved)
		snap.AssigneeID = &assignee
		return events.NewCallCompletedEvent(snap, string(call.StatusInProgress), snap.Status, assignee), nil
	}
	return nil, fmt.Errorf("unknown event type %q; known types: %v", eventType, callEventTypes())
}

func publishTestEvent(eventType string) error {
	lg := logger.LoggerWrapper()

	event, err := sampleCallEvent(eventType)
	if err != nil {
		return err
	}

	eventBus := events.NewEventBus(lg)
	eventBus.Subscribe(eventType, func(ctx context.Context, event events.Event) error {
		lg.Info("test handler received event",
			"event_id", event.EventID(),
			"event_type", event.EventType(),
			"payload", event.Payload())
		return nil
	})

	if err := eventBus.PublishSync(context.Background(), event); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	lg.Info("event published", "event_id", event.EventID(), "event_type", eventType)
	return nil
}

func init() {
	publishEventCmd.Flags().StringVar(&eventRegion, "region", string(call.RegionInland), "region of the sample call")
	publishEventCmd.Flags().StringVar(&eventProvince, "province", "Gauteng", "province of the sample call")

	eventCmd.AddCommand(publishEventCmd)
	eventCmd.AddCommand(listEventTypesCmd)
}
