package service

import (
	"context"
	"encoding/base64"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/clock"
	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/events"
	"github.com/spec-kit/support-desk/internal/repository"
	apperrors "github.com/spec-kit/support-desk/pkg/util/errorutil"
)

// TicketService coordinates ticket workflows.
type TicketService struct {
	tickets     repository.TicketRepository
	messages    repository.TicketMessageRepository
	dispatcher  events.Dispatcher
	clock       clock.Clock
	logger      *zap.Logger
	snippetLen  int
	pageSize    int
	maxPageSize int
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo    repository.TicketRepository
	MessageRepo   repository.TicketMessageRepository
	Dispatcher    events.Dispatcher
	Clock         clock.Clock
	Logger        *zap.Logger
	SnippetLength int
	PageSize      int
	MaxPageSize   int
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	s := &TicketService{
		tickets:     deps.TicketRepo,
		messages:    deps.MessageRepo,
		dispatcher:  deps.Dispatcher,
		clock:       deps.Clock,
		logger:      deps.Logger,
		snippetLen:  deps.SnippetLength,
		pageSize:    deps.PageSize,
		maxPageSize: deps.MaxPageSize,
	}
	if s.clock == nil {
		s.clock = clock.Real()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.snippetLen <= 0 {
		s.snippetLen = 100
	}
	if s.pageSize <= 0 {
		s.pageSize = 20
	}
	if s.maxPageSize < s.pageSize {
		s.maxPageSize = s.pageSize
	}
	return s
}

// CreateTicket opens a ticket owned by the caller with text as its first message.
func (s *TicketService) CreateTicket(ctx context.Context, caller domain.Identity, title, text string) (*domain.Ticket, error) {
	title, text = strings.TrimSpace(title), strings.TrimSpace(text)
	if err := domain.ValidateTitle(title); err != nil {
		return nil, apperrors.NewValidationError(err.Error(), map[string]any{"field": "title"})
	}
	if err := domain.ValidateText(text); err != nil {
		return nil, apperrors.NewValidationError(err.Error(), map[string]any{"field": "text"})
	}

	now := s.clock.Now()
	ticket := &domain.Ticket{
		Title:              title,
		Status:             domain.TicketStatusOpen,
		LastMessageSnippet: domain.Snippet(text, s.snippetLen),
		OwnerID:            caller.Subject,
		OwnerEmail:         caller.Email,
		OwnerName:          caller.Name,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, err
	}
	first := &domain.Message{
		TicketID:   ticket.ID,
		Sender:     senderName(caller),
		SenderType: domain.SenderTypeUser,
		Text:       text,
		CreatedAt:  now,
	}
	if err := s.messages.Create(ctx, first); err != nil {
		// A ticket without its opening message is not kept.
		if delErr := s.tickets.Delete(ctx, ticket.ID); delErr != nil {
			s.logger.Error("failed to remove ticket without thread",
				zap.String("ticket_id", ticket.ID), zap.Error(delErr))
		}
		return nil, err
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    actorOf(caller),
		Payload: events.TicketCreatedPayload{
			Title:   ticket.Title,
			OwnerID: ticket.OwnerID,
		},
	})
	return ticket, nil
}

// ListTickets returns one page of tickets, most recently updated first.
// Users see their own tickets; admins listing in admin scope see all.
func (s *TicketService) ListTickets(ctx context.Context, caller domain.Identity, scope domain.Scope, filter domain.ListFilter) (domain.TicketPage, error) {
	if scope == domain.ScopeAdmin && caller.Role != domain.RoleAdmin {
		return domain.TicketPage{}, apperrors.NewForbidden("admin listing requires staff role")
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return domain.TicketPage{}, apperrors.NewValidationError("unknown status", map[string]any{"status": filter.Status})
	}
	offset, err := decodeCursor(filter.Cursor)
	if err != nil {
		return domain.TicketPage{}, err
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = s.pageSize
	}
	if limit > s.maxPageSize {
		limit = s.maxPageSize
	}

	repoFilter := repository.TicketFilter{
		Status: filter.Status,
		Limit:  limit + 1,
		Offset: offset,
	}
	if scope != domain.ScopeAdmin {
		owner := caller.Subject
		repoFilter.OwnerID = &owner
	}
	tickets, err := s.tickets.List(ctx, repoFilter)
	if err != nil {
		return domain.TicketPage{}, err
	}

	page := domain.TicketPage{Items: tickets}
	if len(tickets) > limit {
		page.Items = tickets[:limit]
		page.NextCursor = encodeCursor(offset + limit)
	}
	if page.Items == nil {
		page.Items = []domain.Ticket{}
	}
	return page, nil
}

// GetTicket fetches a ticket the caller may see.
func (s *TicketService) GetTicket(ctx context.Context, caller domain.Identity, ticketID string) (*domain.Ticket, error) {
	return s.accessibleTicket(ctx, caller, ticketID)
}

// ListMessages returns the ticket thread in the order it was written.
func (s *TicketService) ListMessages(ctx context.Context, caller domain.Identity, ticketID string) ([]domain.Message, error) {
	ticket, err := s.accessibleTicket(ctx, caller, ticketID)
	if err != nil {
		return nil, err
	}
	return s.messages.ListByTicket(ctx, ticket.ID)
}

// AddMessage appends a message acting as the caller's role and bumps the
// ticket's snippet and update time. Status is left alone.
func (s *TicketService) AddMessage(ctx context.Context, caller domain.Identity, ticketID, text string) (*domain.Message, error) {
	text = strings.TrimSpace(text)
	if err := domain.ValidateText(text); err != nil {
		return nil, apperrors.NewValidationError(err.Error(), map[string]any{"field": "text"})
	}
	ticket, err := s.accessibleTicket(ctx, caller, ticketID)
	if err != nil {
		return nil, err
	}

	msg := &domain.Message{
		TicketID:   ticket.ID,
		Sender:     senderName(caller),
		SenderType: caller.Scope().SenderType(),
		Text:       text,
		CreatedAt:  s.clock.Now(),
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, err
	}
	ticket, err = s.tickets.RecordMessage(ctx, ticket.ID, domain.Snippet(text, s.snippetLen), msg.CreatedAt)
	if err != nil {
		return nil, err
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketMessageAdded,
		TicketID: ticket.ID,
		Actor:    actorOf(caller),
		Payload: events.TicketMessageAddedPayload{
			MessageID:   msg.ID,
			SenderType:  msg.SenderType,
			BodyPreview: domain.Snippet(msg.Text, 120),
		},
	})
	return msg, nil
}

// UpdateStatus sets the ticket status. Staff may set any status; owners may
// only move their ticket to IN_PROGRESS, which is what their replies and
// views trigger.
func (s *TicketService) UpdateStatus(ctx context.Context, caller domain.Identity, ticketID string, status domain.TicketStatus) (*domain.Ticket, error) {
	if !status.Valid() {
		return nil, apperrors.NewValidationError("unknown status", map[string]any{"status": status})
	}
	ticket, err := s.accessibleTicket(ctx, caller, ticketID)
	if err != nil {
		return nil, err
	}
	if caller.Role != domain.RoleAdmin && status != domain.TicketStatusInProgress {
		return nil, apperrors.NewForbidden("users may only reopen their tickets")
	}
	if ticket.Status == status {
		return ticket, nil
	}

	oldStatus := ticket.Status
	ticket, err = s.tickets.SetStatus(ctx, ticket.ID, status, s.clock.Now())
	if err != nil {
		return nil, err
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: ticket.ID,
		Actor:    actorOf(caller),
		Payload: events.TicketStatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: status,
		},
	})
	return ticket, nil
}

func (s *TicketService) accessibleTicket(ctx context.Context, caller domain.Identity, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if caller.Role != domain.RoleAdmin && ticket.OwnerID != caller.Subject {
		// Tickets of other users are reported as missing.
		return nil, apperrors.NewNotFound("ticket", map[string]any{"id": ticketID})
	}
	return ticket, nil
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.clock.Now()
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event subscriber failed", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}

func actorOf(caller domain.Identity) events.Actor {
	return events.Actor{Role: caller.Role, ID: caller.Subject}
}

func senderName(caller domain.Identity) string {
	if caller.Role == domain.RoleAdmin {
		return "admin"
	}
	if caller.Email != "" {
		return caller.Email
	}
	return caller.Subject
}

const cursorPrefix = "o:"

func encodeCursor(offset int) string {
	return base64.RawURLEncoding.EncodeToString([]byte(cursorPrefix + strconv.Itoa(offset)))
}

func decodeCursor(cursor string) (int, error) {
	if cursor == "" {
		return 0, nil
	}
	invalid := apperrors.NewValidationError("invalid cursor", map[string]any{"cursor": cursor})
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil || !strings.HasPrefix(string(raw), cursorPrefix) {
		return 0, invalid
	}
	offset, err := strconv.Atoi(strings.TrimPrefix(string(raw), cursorPrefix))
	if err != nil || offset < 0 {
		return 0, invalid
	}
	return offset, nil
}
