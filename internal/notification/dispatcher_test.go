package notification_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/facilities-maintenance/internal"
	"github.com/frahmantamala/facilities-maintenance/internal/auth"
	"github.com/frahmantamala/facilities-maintenance/internal/call"
	"github.com/frahmantamala/facilities-maintenance/internal/core/events"
	"github.com/frahmantamala/facilities-maintenance/internal/notification"
	"github.com/frahmantamala/facilities-maintenance/pkg/clock"
)

type MockIdentities map[int64]*auth.Identity

func (m MockIdentities) GetByID(_ context.Context, id int64) (*auth.Identity, error) {
	i, ok := m[id]
	if !ok {
		return nil, internal.ErrUserNotFound
	}
	return i, nil
}

func sampleCall() notification.CallSummary {
	return notification.CallSummary{
		ID:           "6f1c1f9e-8a47-4a5e-9a55-2f3c1e0c7a10",
		CallNumber:   "MC-202403-0042",
		Title:        "Aircon <script>alert(1)</script> failure",
		Description:  "Server room aircon is **not** cooling.",
		CallType:     "hvac",
		Building:     "Block A",
		Province:     "Western Cape",
		Region:       "coastal",
		Priority:     "critical",
		Status:       "open",
		ReporterID:   1,
		ReportedDate: time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC),
	}
}

var _ = Describe("Dispatcher", func() {
	var (
		ctx        context.Context
		clk        *clock.Fake
		records    *MockRecordRepository
		mailer     *MockMailer
		dispatcher *notification.Dispatcher
		logger     *slog.Logger
	)

	BeforeEach(func() {
		ctx = context.Background()
		clk = clock.NewFake(time.Date(2024, 3, 4, 8, 5, 0, 0, time.UTC))
		records = NewMockRecordRepository()
		mailer = &MockMailer{failFor: map[string]bool{}}
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		dispatcher = notification.NewDispatcher(records, mailer, notification.NewRenderer("https://fm.example.org"),
			notification.DispatcherConfig{DeliveryMode: internal.DeliveryModeSMTP, SendTimeout: 50 * time.Millisecond}, clk, logger)
	})

	recipients := []notification.Recipient{
		{Type: notification.RecipientCoordinator, Address: "ct@example.org"},
		{Type: notification.RecipientCoordinator, Address: "bounce@example.org"},
	}

	It("should record one resolved attempt per recipient", func() {
		mailer.failFor["bounce@example.org"] = true

		out := dispatcher.Dispatch(ctx, sampleCall(), recipients, notification.TypeNewCall)
		Expect(out).To(HaveLen(2))
		Expect(out[0].Status).To(Equal(notification.StatusSent))
		Expect(out[1].Status).To(Equal(notification.StatusFailed))
		Expect(out[1].ErrorDetail).To(ContainSubstring("mailbox unavailable"))

		stored := records.All()
		Expect(stored).To(HaveLen(2))
		for _, r := range stored {
			Expect(r.Status).NotTo(Equal(notification.StatusPending))
			Expect(r.Attempt).To(Equal(1))
			Expect(r.DeliveryMode).To(Equal(internal.DeliveryModeSMTP))
			Expect(r.ResolvedAt).NotTo(BeNil())
		}
	})

	It("should render a sanitised HTML body with a link to the call", func() {
		dispatcher.Dispatch(ctx, sampleCall(), recipients[:1], notification.TypeNewCall)

		sent := mailer.Sent()
		Expect(sent).To(HaveLen(1))
		Expect(sent[0].Subject).To(ContainSubstring("MC-202403-0042"))
		Expect(sent[0].Subject).To(ContainSubstring("critical"))
		Expect(sent[0].HTMLBody).NotTo(ContainSubstring("<script>"))
		Expect(sent[0].HTMLBody).To(ContainSubstring("<strong>not</strong>"))
		Expect(sent[0].HTMLBody).To(ContainSubstring("https://fm.example.org/calls/6f1c1f9e-8a47-4a5e-9a55-2f3c1e0c7a10"))
		Expect(sent[0].PlainBody).To(ContainSubstring("respond within 1h0m0s"))
	})

	It("should bound a hanging mailer by the send timeout", func() {
		mailer.block = true
		start := time.Now()

		out := dispatcher.Dispatch(ctx, sampleCall(), recipients[:1], notification.TypeNewCall)
		Expect(time.Since(start)).To(BeNumerically("<", time.Second))
		Expect(out[0].Status).To(Equal(notification.StatusFailed))
		Expect(out[0].ErrorDetail).To(ContainSubstring("deadline exceeded"))
	})

	It("should skip recipients whose record cannot be written", func() {
		records.createErr = errors.New("disk full")
		out := dispatcher.Dispatch(ctx, sampleCall(), recipients, notification.TypeNewCall)
		Expect(out).To(BeEmpty())
		Expect(mailer.Sent()).To(BeEmpty())
	})

	It("should keep stats meaningful in log-only mode", func() {
		logOnly := notification.NewDispatcher(records, notification.NewLogMailer(logger), notification.NewRenderer(""),
			notification.DispatcherConfig{DeliveryMode: internal.DeliveryModeLogOnly}, clk, logger)

		out := logOnly.Dispatch(ctx, sampleCall(), recipients, notification.TypeAssignment)
		Expect(out).To(HaveLen(2))
		Expect(out[0].Status).To(Equal(notification.StatusSent))

		stats, err := logOnly.Stats(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(stats.DeliveryMode).To(Equal(internal.DeliveryModeLogOnly))
		Expect(stats.Total).To(Equal(int64(2)))
		Expect(stats.ByStatus[notification.StatusSent]).To(Equal(int64(2)))
		Expect(stats.ByType[notification.TypeAssignment]).To(Equal(int64(2)))
	})

	Describe("Redeliverer", func() {
		It("should retry failures as new linked records and stop at the attempt limit", func() {
			mailer.failFor["bounce@example.org"] = true
			dispatcher.Dispatch(ctx, sampleCall(), recipients, notification.TypeNewCall)

			redeliverer := notification.NewRedeliverer(dispatcher, records, notification.RedelivererConfig{
				MaxAttempts: 2,
				Rate:        1000,
			}, logger)

			sent, err := redeliverer.RunOnce(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(sent).To(BeZero())

			stored := records.All()
			Expect(stored).To(HaveLen(3))
			retry := stored[2]
			Expect(retry.Attempt).To(Equal(2))
			Expect(*retry.PreviousID).To(Equal(stored[1].ID))
			Expect(stored[1].Status).To(Equal(notification.StatusFailed))

			sent, err = redeliverer.RunOnce(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(sent).To(BeZero())
			Expect(records.All()).To(HaveLen(3))
		})

		It("should fail and retry records abandoned in pending", func() {
			records.Abandon(&notification.Record{
				CallID:        "call-1",
				CallNumber:    "MC-202403-0001",
				Type:          notification.TypeNewCall,
				RecipientType: notification.RecipientCoordinator,
				Recipient:     "ct@example.org",
				Subject:       "[MC-202403-0001] New call",
				Body:          "A new maintenance call has been logged.",
				Attempt:       1,
				CreatedAt:     clk.Now(),
			})
			redeliverer := notification.NewRedeliverer(dispatcher, records, notification.RedelivererConfig{Rate: 1000}, logger)

			sent, err := redeliverer.RunOnce(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(sent).To(BeZero())
			Expect(records.All()[0].Status).To(Equal(notification.StatusPending), "still within the send window")

			clk.Advance(2 * time.Minute)
			sent, err = redeliverer.RunOnce(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(sent).To(Equal(1))

			stored := records.All()
			Expect(stored).To(HaveLen(2))
			Expect(stored[0].Status).To(Equal(notification.StatusFailed))
			Expect(stored[0].ErrorDetail).To(ContainSubstring("pending"))
			Expect(stored[1].Status).To(Equal(notification.StatusSent))
			Expect(*stored[1].PreviousID).To(Equal(stored[0].ID))
			Expect(mailer.Recipients()).To(ConsistOf("ct@example.org"))
		})

		It("should count successful redeliveries", func() {
			mailer.failFor["bounce@example.org"] = true
			dispatcher.Dispatch(ctx, sampleCall(), recipients, notification.TypeNewCall)
			delete(mailer.failFor, "bounce@example.org")

			redeliverer := notification.NewRedeliverer(dispatcher, records, notification.RedelivererConfig{Rate: 1000}, logger)
			sent, err := redeliverer.RunOnce(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(sent).To(Equal(1))
		})
	})

	Describe("Notifier", func() {
		var notifier *notification.Notifier

		BeforeEach(func() {
			source := &MockCoordinators{coordinators: []*notification.Coordinator{
				{ID: 1, Name: "Cape Town desk", Email: "ct@example.org", Region: call.RegionCoastal, Provinces: []string{"Western Cape"}, IsActive: true},
			}}
			identities := MockIdentities{
				1: {ID: 1, Email: "nomsa@example.org", DisplayName: "Nomsa"},
				2: {ID: 2, Email: "tshepo@example.org", DisplayName: "Tshepo"},
			}
			notifier = notification.NewNotifier(notification.NewRouter(source, logger), dispatcher, identities, logger)
		})

		It("should notify coordinators and the assignee of an assignment", func() {
			c := sampleCall()
			assignee := int64(2)
			c.AssigneeID = &assignee

			out := notifier.Notify(ctx, notification.Job{Type: notification.TypeAssignment, Call: c})
			Expect(out).To(HaveLen(2))
			Expect(mailer.Recipients()).To(ConsistOf("ct@example.org", "tshepo@example.org"))
		})

		It("should notify the reporter contact on completion when it is an email", func() {
			c := sampleCall()
			c.ReporterContact = "facilities@tenant.example.org"

			notifier.Notify(ctx, notification.Job{Type: notification.TypeCompletion, Call: c})
			Expect(mailer.Recipients()).To(ConsistOf("ct@example.org", "facilities@tenant.example.org"))
		})

		It("should fall back to the reporter's own address", func() {
			c := sampleCall()
			c.ReporterContact = "ext 4411"

			notifier.Notify(ctx, notification.Job{Type: notification.TypeCompletion, Call: c})
			Expect(mailer.Recipients()).To(ConsistOf("ct@example.org", "nomsa@example.org"))
		})

		It("should only notify coordinators of status changes", func() {
			notifier.Notify(ctx, notification.Job{Type: notification.TypeStatusChange, Call: sampleCall()})
			Expect(mailer.Recipients()).To(Equal([]string{"ct@example.org"}))
		})
	})

	Describe("EventHandler", func() {
		It("should turn call events into queued jobs", func() {
			queue := &RecordingEnqueuer{accept: true}
			handler := notification.NewEventHandler(queue, logger)

			ev := events.NewCallCompletedEvent(sampleCall(), "in_progress", "resolved", 2)
			Expect(handler.Handle(ctx, ev)).To(Succeed())
			Expect(queue.jobs).To(HaveLen(1))
			Expect(queue.jobs[0].Type).To(Equal(notification.TypeCompletion))
			Expect(queue.jobs[0].EventID).To(Equal(ev.EventID()))
		})

		It("should drop jobs quietly when the queue is full", func() {
			queue := &RecordingEnqueuer{accept: false}
			handler := notification.NewEventHandler(queue, logger)

			Expect(handler.Handle(ctx, events.NewCallCreatedEvent(sampleCall(), 1))).To(Succeed())
			Expect(queue.jobs).To(BeEmpty())
		})

		It("should be driven by the event bus", func() {
			queue := &RecordingEnqueuer{accept: true}
			bus := events.NewEventBus(logger)
			notification.NewEventHandler(queue, logger).Register(bus)

			Expect(bus.PublishSync(ctx, events.NewCallCreatedEvent(sampleCall(), 1))).To(Succeed())
			Expect(queue.jobs).To(HaveLen(1))
			Expect(queue.jobs[0].Type).To(Equal(notification.TypeNewCall))
		})
	})
})

type RecordingEnqueuer struct {
	accept bool
	jobs   []notification.Job
}

func (r *RecordingEnqueuer) Enqueue(job notification.Job) bool {
	if !r.accept {
		return false
	}
	r.jobs = append(r.jobs, job)
	return true
}
