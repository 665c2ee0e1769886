package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/forge-tickets/internal/config"
	"github.com/spec-kit/forge-tickets/internal/events"
)

// NotificationService handles emitting notifications for ticket events.
// Recipients are derived from the ticket snapshot attached to the event:
// everyone who authored a change plus the watcher list.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
	n.dispatcher.Subscribe(events.EventStatusChanged, n.handleStatusChanged)
	n.dispatcher.Subscribe(events.EventCommentAdded, n.handleCommentAdded)
	n.dispatcher.Subscribe(events.EventPatchsetUploaded, n.handlePatchsetUploaded)
	n.dispatcher.Subscribe(events.EventReviewAdded, n.handleReviewAdded)
	n.dispatcher.Subscribe(events.EventTicketMerged, n.handleTicketMerged)
}

func (n *NotificationService) handleTicketCreated(ctx context.Context, event events.Event) error {
	n.logger.Info("TicketCreated",
		zap.String("repository", event.Repository),
		zap.Int64("ticket", event.Number),
		zap.Strings("recipients", recipients(event)))
	n.sendEmailNotificationStub(ctx, event)
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleStatusChanged(ctx context.Context, event events.Event) error {
	n.logger.Info("TicketStatusChanged",
		zap.String("repository", event.Repository),
		zap.Int64("ticket", event.Number),
		zap.Any("payload", event.Payload),
		zap.Strings("recipients", recipients(event)))
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleCommentAdded(ctx context.Context, event events.Event) error {
	n.logger.Info("TicketCommentAdded",
		zap.String("repository", event.Repository),
		zap.Int64("ticket", event.Number),
		zap.Strings("recipients", recipients(event)))
	n.sendEmailNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handlePatchsetUploaded(ctx context.Context, event events.Event) error {
	n.logger.Info("TicketPatchsetUploaded",
		zap.String("repository", event.Repository),
		zap.Int64("ticket", event.Number),
		zap.Any("payload", event.Payload),
		zap.Strings("recipients", recipients(event)))
	n.sendEmailNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleReviewAdded(ctx context.Context, event events.Event) error {
	n.logger.Info("TicketReviewAdded",
		zap.String("repository", event.Repository),
		zap.Int64("ticket", event.Number),
		zap.Any("payload", event.Payload),
		zap.Strings("recipients", recipients(event)))
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleTicketMerged(ctx context.Context, event events.Event) error {
	n.logger.Info("TicketMerged",
		zap.String("repository", event.Repository),
		zap.Int64("ticket", event.Number),
		zap.Any("payload", event.Payload),
		zap.Strings("recipients", recipients(event)))
	n.sendEmailNotificationStub(ctx, event)
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

// recipients merges change participants and watchers, minus the actor.
func recipients(event events.Event) []string {
	if event.Ticket == nil {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	add := func(name string) {
		if name == "" || name == event.Actor || seen[name] {
			return
		}
		seen[name] = true
		out = append(out, name)
	}
	for _, name := range event.Ticket.Participants() {
		add(name)
	}
	for _, name := range event.Ticket.Watchers() {
		add(name)
	}
	return out
}

func (n *NotificationService) sendEmailNotificationStub(ctx context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.EmailFrom) == "" {
		return
	}
	n.logger.Debug("sendEmailNotificationStub",
		zap.String("from", n.cfg.EmailFrom),
		zap.String("repository", event.Repository),
		zap.Int64("ticket", event.Number),
		zap.String("event_type", string(event.Type)))
}

func (n *NotificationService) sendWebhookNotificationStub(ctx context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	n.logger.Debug("sendWebhookNotificationStub",
		zap.String("url", n.cfg.WebhookURL),
		zap.String("repository", event.Repository),
		zap.Int64("ticket", event.Number),
		zap.String("event_type", string(event.Type)))
}
