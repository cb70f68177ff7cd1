// Package client implements desk.API against the support-desk HTTP service.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/api/dto"
	"github.com/spec-kit/support-desk/internal/desk"
	"github.com/spec-kit/support-desk/internal/domain"
	apperrors "github.com/spec-kit/support-desk/pkg/util/errorutil"
)

// TokenSource supplies the bearer token for each request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed bearer token.
type StaticToken string

// Token returns the token, or an unauthorized error when it is empty.
func (t StaticToken) Token(context.Context) (string, error) {
	if strings.TrimSpace(string(t)) == "" {
		return "", apperrors.NewUnauthorized("no access token configured")
	}
	return string(t), nil
}

// Options configures a Client.
type Options struct {
	BaseURL string
	Timeout time.Duration
	Tokens  TokenSource
	// Dial overrides how connections are made, mainly for tests.
	Dial   fasthttp.DialFunc
	Logger *zap.Logger
}

// Client talks to the service over HTTP.
type Client struct {
	baseURL string
	timeout time.Duration
	tokens  TokenSource
	http    *fasthttp.Client
	logger  *zap.Logger
}

var _ desk.API = (*Client)(nil)

// New builds a client.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Tokens == nil {
		opts.Tokens = StaticToken("")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		timeout: opts.Timeout,
		tokens:  opts.Tokens,
		http: &fasthttp.Client{
			Name:                "deskctl",
			Dial:                opts.Dial,
			ReadTimeout:         opts.Timeout,
			WriteTimeout:        opts.Timeout,
			MaxIdleConnDuration: time.Minute,
		},
		logger: opts.Logger,
	}
}

// ListTickets implements desk.API.
func (c *Client) ListTickets(ctx context.Context, scope domain.Scope, filter domain.ListFilter) (domain.TicketPage, error) {
	path := "/tickets"
	if scope == domain.ScopeAdmin {
		path = "/admin/tickets"
	}
	query := fasthttp.AcquireArgs()
	defer fasthttp.ReleaseArgs(query)
	if filter.Status != "" {
		query.Add("status", string(filter.Status))
	}
	if filter.Limit > 0 {
		query.Add("limit", strconv.Itoa(filter.Limit))
	}
	if filter.Cursor != "" {
		query.Add("cursor", filter.Cursor)
	}
	if query.Len() > 0 {
		path += "?" + query.String()
	}

	var out dto.PageResponse[dto.TicketResponse]
	if err := c.do(ctx, fasthttp.MethodGet, path, nil, &out); err != nil {
		return domain.TicketPage{}, err
	}
	page := domain.TicketPage{Items: make([]domain.Ticket, 0, len(out.Data)), NextCursor: out.NextCursor}
	for _, ticket := range out.Data {
		page.Items = append(page.Items, ticket.Domain())
	}
	return page, nil
}

// GetTicket implements desk.API.
func (c *Client) GetTicket(ctx context.Context, ticketID string) (domain.Ticket, error) {
	var out dto.DataResponse[dto.TicketResponse]
	if err := c.do(ctx, fasthttp.MethodGet, ticketPath(ticketID, ""), nil, &out); err != nil {
		return domain.Ticket{}, err
	}
	return out.Data.Domain(), nil
}

// GetTicketMessages implements desk.API.
func (c *Client) GetTicketMessages(ctx context.Context, ticketID string) ([]domain.Message, error) {
	var out dto.DataResponse[[]dto.MessageResponse]
	if err := c.do(ctx, fasthttp.MethodGet, ticketPath(ticketID, "/messages"), nil, &out); err != nil {
		return nil, err
	}
	msgs := make([]domain.Message, 0, len(out.Data))
	for _, msg := range out.Data {
		msgs = append(msgs, msg.Domain())
	}
	return msgs, nil
}

// CreateTicket implements desk.API.
func (c *Client) CreateTicket(ctx context.Context, title, text string) (domain.Ticket, error) {
	var out dto.DataResponse[dto.TicketResponse]
	body := dto.CreateTicketRequest{Title: title, Text: text}
	if err := c.do(ctx, fasthttp.MethodPost, "/tickets", body, &out); err != nil {
		return domain.Ticket{}, err
	}
	return out.Data.Domain(), nil
}

// AddMessage implements desk.API. The service derives the sender type from
// the token's role; actingAs is checked against the reply.
func (c *Client) AddMessage(ctx context.Context, ticketID, text string, actingAs domain.Scope) (domain.Message, error) {
	var out dto.DataResponse[dto.MessageResponse]
	body := dto.CreateMessageRequest{Text: text}
	if err := c.do(ctx, fasthttp.MethodPost, ticketPath(ticketID, "/messages"), body, &out); err != nil {
		return domain.Message{}, err
	}
	msg := out.Data.Domain()
	if msg.SenderType != actingAs.SenderType() {
		c.logger.Warn("message recorded under a different role",
			zap.String("ticket_id", ticketID),
			zap.String("expected", string(actingAs.SenderType())),
			zap.String("actual", string(msg.SenderType)))
	}
	return msg, nil
}

// UpdateTicketStatus implements desk.API.
func (c *Client) UpdateTicketStatus(ctx context.Context, ticketID string, status domain.TicketStatus) (domain.Ticket, error) {
	var out dto.DataResponse[dto.TicketResponse]
	body := dto.UpdateStatusRequest{Status: status}
	if err := c.do(ctx, fasthttp.MethodPatch, ticketPath(ticketID, "/status"), body, &out); err != nil {
		return domain.Ticket{}, err
	}
	return out.Data.Domain(), nil
}

func ticketPath(ticketID, suffix string) string {
	return "/tickets/" + url.PathEscape(ticketID) + suffix
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + path)
	req.Header.SetMethod(method)
	req.Header.Set(fasthttp.HeaderAuthorization, "Bearer "+token)
	req.Header.Set(fasthttp.HeaderAccept, "application/json")
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		req.Header.SetContentType("application/json")
		req.SetBody(raw)
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	start := time.Now()
	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		c.logger.Debug("request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		if errors.Is(err, fasthttp.ErrTimeout) && ctx.Err() != nil {
			return ctx.Err()
		}
		return apperrors.NewUnavailable(err)
	}
	c.logger.Debug("request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode()),
		zap.Duration("latency", time.Since(start)))

	if resp.StatusCode() >= fasthttp.StatusBadRequest {
		return decodeError(resp.StatusCode(), resp.Body())
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return apperrors.NewUnavailable(fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func decodeError(status int, body []byte) error {
	var envelope dto.ErrorResponse
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Error.Code == "" {
		message := strings.TrimSpace(string(body))
		if message == "" {
			message = fasthttp.StatusMessage(status)
		}
		return apperrors.NewDomainError(apperrors.CodeInternal, message, status, nil)
	}
	return apperrors.NewDomainError(envelope.Error.Code, envelope.Error.Message, status, envelope.Error.Details)
}
