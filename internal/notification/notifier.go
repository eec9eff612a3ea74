package notification

import (
	"context"
	"log/slog"
	"strings"

	"github.com/frahmantamala/facilities-maintenance/internal/auth"
	"github.com/frahmantamala/facilities-maintenance/internal/core/common/validation"
	"github.com/frahmantamala/facilities-maintenance/internal/core/events"
	"github.com/frahmantamala/facilities-maintenance/internal/metrics"
)

type IdentityLookup interface {
	GetByID(ctx context.Context, id int64) (*auth.Identity, error)
}

// Notifier turns a job into recipients and hands them to the dispatcher.
type Notifier struct {
	router     *Router
	dispatcher *Dispatcher
	identities IdentityLookup
	logger     *slog.Logger
}

func NewNotifier(router *Router, dispatcher *Dispatcher, identities IdentityLookup, logger *slog.Logger) *Notifier {
	return &Notifier{
		router:     router,
		dispatcher: dispatcher,
		identities: identities,
		logger:     logger,
	}
}

func (n *Notifier) Notify(ctx context.Context, job Job) []*Record {
	recipients := n.recipients(ctx, job)
	if len(recipients) == 0 {
		n.logger.Warn("notification has no recipients", "call_number", job.Call.CallNumber, "type", job.Type)
		return nil
	}
	return n.dispatcher.Dispatch(ctx, job.Call, recipients, job.Type)
}

func (n *Notifier) recipients(ctx context.Context, job Job) []Recipient {
	var out []Recipient
	seen := make(map[string]bool)
	add := func(t RecipientType, name, address string) {
		key := strings.ToLower(strings.TrimSpace(address))
		if key == "" || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, Recipient{Type: t, Name: name, Address: address})
	}

	coordinators, err := n.router.Route(ctx, job.Call)
	if err != nil {
		n.logger.Error("failed to route notification", "error", err, "call_number", job.Call.CallNumber)
	}
	for _, c := range coordinators {
		add(RecipientCoordinator, c.Name, c.Email)
	}

	switch job.Type {
	case TypeAssignment:
		if job.Call.AssigneeID != nil {
			if identity := n.lookup(ctx, *job.Call.AssigneeID); identity != nil {
				add(RecipientAssignee, identity.DisplayName, identity.Email)
			}
		}
	case TypeCompletion:
		if validation.IsEmail(job.Call.ReporterContact) {
			add(RecipientReporter, job.Call.ReporterName, job.Call.ReporterContact)
		} else if identity := n.lookup(ctx, job.Call.ReporterID); identity != nil {
			add(RecipientReporter, identity.DisplayName, identity.Email)
		}
	}
	return out
}

func (n *Notifier) lookup(ctx context.Context, id int64) *auth.Identity {
	identity, err := n.identities.GetByID(ctx, id)
	if err != nil {
		n.logger.Warn("failed to look up notification recipient", "error", err, "identity_id", id)
		return nil
	}
	return identity
}

type Enqueuer interface {
	Enqueue(job Job) bool
}

// EventHandler moves call events onto the notification queue so delivery
// never runs on the request path.
type EventHandler struct {
	queue  Enqueuer
	logger *slog.Logger
}

func NewEventHandler(queue Enqueuer, logger *slog.Logger) *EventHandler {
	return &EventHandler{queue: queue, logger: logger}
}

// Register subscribes the handler to every call event.
func (h *EventHandler) Register(bus *events.EventBus) {
	bus.Subscribe(events.EventTypeCallCreated, h.Handle)
	bus.Subscribe(events.EventTypeCallAssigned, h.Handle)
	bus.Subscribe(events.EventTypeCallStatusChanged, h.Handle)
	bus.Subscribe(events.EventTypeCallCompleted, h.Handle)
}

func (h *EventHandler) Handle(_ context.Context, e events.Event) error {
	ce, ok := e.(*events.CallEvent)
	if !ok {
		h.logger.Warn("ignoring non-call event", "event_type", e.EventType())
		return nil
	}
	t, ok := TypeForEvent(ce.EventType())
	if !ok {
		return nil
	}

	job := Job{EventID: ce.EventID(), Type: t, Call: ce.Call, ActorID: ce.ActorID}
	if !h.queue.Enqueue(job) {
		metrics.RecordNotificationDropped()
		h.logger.Warn("notification queue full, dropping job",
			"event_id", ce.EventID(),
			"call_number", ce.Call.CallNumber,
			"type", t)
	}
	return nil
}
