package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/auth"
	"github.com/spec-kit/support-desk/internal/config"
	"github.com/spec-kit/support-desk/internal/desk"
	"github.com/spec-kit/support-desk/internal/domain"
)

const timeLayout = "2006-01-02 15:04"

func newPanel(api desk.API, cfg *config.Config, logger *zap.Logger) *desk.Panel {
	scope := domain.ScopeUser
	if cfg.Client.Admin {
		scope = domain.ScopeAdmin
	}
	return desk.NewPanel(api, desk.Options{
		Scope:         scope,
		Freshness:     cfg.Desk.Freshness,
		SnippetLength: cfg.Desk.SnippetLength,
		Logger:        logger,
	})
}

func (c *cli) list(ctx context.Context, panel *desk.Panel, admin bool, opts options) error {
	filter := domain.ListFilter{Limit: opts.limit, Cursor: opts.cursor}
	if err := panel.LoadTickets(ctx, filter); err != nil {
		return err
	}

	statusFilter := desk.UserStatusFilter(opts.status)
	if admin {
		statusFilter = desk.AdminStatusFilter(opts.status)
	}
	tickets := panel.Tickets(opts.query, statusFilter)

	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tUPDATED\tTITLE\tLAST MESSAGE")
	for _, ticket := range tickets {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			ticket.ID,
			statusLabel(ticket.Status, admin),
			ticket.UpdatedAt.Local().Format(timeLayout),
			ticket.Title,
			oneLine(ticket.LastMessageSnippet))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if cursor := panel.NextCursor(); cursor != "" {
		fmt.Fprintf(c.out, "\nmore tickets: --cursor %s\n", cursor)
	}
	return nil
}

func (c *cli) show(ctx context.Context, panel *desk.Panel, admin bool, ticketID string) error {
	entry, err := panel.Select(ctx, ticketID)
	if err != nil {
		return err
	}
	ticket := entry.Ticket
	fmt.Fprintf(c.out, "%s  %s\n", ticket.Title, statusLabel(ticket.Status, admin))
	fmt.Fprintf(c.out, "id %s  opened %s\n", ticket.ID, ticket.CreatedAt.Local().Format(timeLayout))
	if ticket.OwnerEmail != "" {
		fmt.Fprintf(c.out, "owner %s\n", ticket.OwnerEmail)
	}
	fmt.Fprintln(c.out)
	for _, msg := range entry.Messages {
		c.printMessage(msg)
	}
	return nil
}

func (c *cli) create(ctx context.Context, panel *desk.Panel, opts options) error {
	ticket, err := panel.CreateTicket(ctx, opts.title, opts.text)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "created %s\n", ticket.ID)
	return nil
}

func (c *cli) reply(ctx context.Context, panel *desk.Panel, ticketID, text string) error {
	if _, err := panel.Select(ctx, ticketID); err != nil {
		return err
	}
	msg, err := panel.SendMessage(ctx, ticketID, text)
	var changeErr *desk.StatusChangeError
	switch {
	case errors.As(err, &changeErr):
		fmt.Fprintf(c.out, "sent %s\n", msg.ID)
		return err
	case err != nil:
		return err
	}
	fmt.Fprintf(c.out, "sent %s\n", msg.ID)
	if entry, ok := panel.Current(); ok && entry.Ticket != nil {
		fmt.Fprintf(c.out, "status %s\n", entry.Ticket.Status)
	}
	return nil
}

func (c *cli) changeStatus(ctx context.Context, panel *desk.Panel, ticketID, status string) error {
	if _, err := panel.Select(ctx, ticketID); err != nil {
		return err
	}
	ticket, err := panel.ChangeStatus(ctx, ticketID, domain.TicketStatus(strings.ToUpper(status)))
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s is now %s\n", ticket.ID, ticket.Status)
	return nil
}

func (c *cli) mintToken(cfg config.AuthConfig, opts options) error {
	if opts.subject == "" {
		return errors.New("token requires --subject")
	}
	identity := domain.Identity{
		Subject: opts.subject,
		Email:   opts.email,
		Name:    opts.name,
		Role:    domain.Role(strings.ToUpper(opts.role)),
	}
	if identity.Role != domain.RoleUser && identity.Role != domain.RoleAdmin {
		return fmt.Errorf("unknown role %q", opts.role)
	}
	token, expires, err := auth.NewTokenManager(cfg.JWTSecret, cfg.Issuer, cfg.TokenTTL()).GenerateToken(identity)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, token)
	fmt.Fprintf(c.out, "expires %s\n", expires.Local().Format(time.RFC3339))
	return nil
}

func (c *cli) printMessage(msg domain.Message) {
	marker := ""
	switch msg.Delivery {
	case domain.DeliverySending:
		marker = " (sending)"
	case domain.DeliveryFailed:
		marker = " (failed)"
	}
	fmt.Fprintf(c.out, "[%s] %s (%s)%s\n  %s\n",
		msg.CreatedAt.Local().Format(timeLayout), msg.Sender, msg.SenderType, marker, msg.Text)
}

func statusLabel(status domain.TicketStatus, admin bool) string {
	if admin {
		return string(status)
	}
	return desk.UserStatusLabel(status)
}

func oneLine(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
