package http

import (
	"bytes"
	"encoding/json"
	"io"
	stdhttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/api/dto"
	"github.com/spec-kit/support-desk/internal/api/http/handlers"
	"github.com/spec-kit/support-desk/internal/auth"
	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/events"
	"github.com/spec-kit/support-desk/internal/observability"
	"github.com/spec-kit/support-desk/internal/realtime"
	"github.com/spec-kit/support-desk/internal/repository"
	"github.com/spec-kit/support-desk/internal/service"
)

type testServer struct {
	app    *fiber.App
	tokens *auth.TokenManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	tokens := auth.NewTokenManager("test-secret", "", time.Hour)
	svc := service.NewTicketService(service.TicketDependencies{
		TicketRepo:  repository.NewMemoryTicketRepository(),
		MessageRepo: repository.NewMemoryTicketMessageRepository(),
		Dispatcher:  events.NewInMemoryDispatcher(),
		Logger:      logger,
	})

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	RegisterMiddlewares(app, logger, metrics, 5*time.Second)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("support-desk", "test", nil),
		Tickets:        handlers.NewTicketsHandler(svc),
		Hub:            realtime.NewHub(logger, metrics),
		Metrics:        metrics,
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
	})
	return &testServer{app: app, tokens: tokens}
}

func (s *testServer) token(t *testing.T, identity domain.Identity) string {
	t.Helper()
	token, _, err := s.tokens.GenerateToken(identity)
	require.NoError(t, err)
	return token
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, payload
}

func decode[T any](t *testing.T, raw []byte) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	return out
}

var (
	userIdentity  = domain.Identity{Subject: "u-1", Email: "user@example.com", Role: domain.RoleUser}
	otherIdentity = domain.Identity{Subject: "u-2", Email: "other@example.com", Role: domain.RoleUser}
	adminIdentity = domain.Identity{Subject: "s-1", Email: "staff@example.com", Role: domain.RoleAdmin}
)

func TestTicketLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	user := srv.token(t, userIdentity)
	admin := srv.token(t, adminIdentity)

	status, raw := srv.do(t, stdhttp.MethodPost, "/tickets", user, dto.CreateTicketRequest{Title: "Broken login", Text: "I cannot sign in"})
	require.Equal(t, stdhttp.StatusCreated, status, string(raw))
	created := decode[dto.DataResponse[dto.TicketResponse]](t, raw).Data
	assert.Equal(t, domain.TicketStatusOpen, created.Status)
	assert.Equal(t, "I cannot sign in", created.LastMessageSnippet)

	status, raw = srv.do(t, stdhttp.MethodPost, "/tickets/"+created.ID+"/messages", admin, dto.CreateMessageRequest{Text: "Looking into it"})
	require.Equal(t, stdhttp.StatusCreated, status, string(raw))
	msg := decode[dto.DataResponse[dto.MessageResponse]](t, raw).Data
	assert.Equal(t, domain.SenderTypeAdmin, msg.SenderType)

	status, raw = srv.do(t, stdhttp.MethodGet, "/tickets/"+created.ID+"/messages", user, nil)
	require.Equal(t, stdhttp.StatusOK, status)
	msgs := decode[dto.DataResponse[[]dto.MessageResponse]](t, raw).Data
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.SenderTypeUser, msgs[0].SenderType)

	status, raw = srv.do(t, stdhttp.MethodPatch, "/tickets/"+created.ID+"/status", admin, dto.UpdateStatusRequest{Status: domain.TicketStatusResolved})
	require.Equal(t, stdhttp.StatusOK, status, string(raw))
	assert.Equal(t, domain.TicketStatusResolved, decode[dto.DataResponse[dto.TicketResponse]](t, raw).Data.Status)

	status, raw = srv.do(t, stdhttp.MethodGet, "/tickets/"+created.ID, user, nil)
	require.Equal(t, stdhttp.StatusOK, status)
	got := decode[dto.DataResponse[dto.TicketResponse]](t, raw).Data
	assert.Equal(t, domain.TicketStatusResolved, got.Status)
	assert.Equal(t, "Looking into it", got.LastMessageSnippet)
}

func TestListingsAreScoped(t *testing.T) {
	srv := newTestServer(t)
	user := srv.token(t, userIdentity)
	other := srv.token(t, otherIdentity)
	admin := srv.token(t, adminIdentity)

	for _, token := range []string{user, user, other} {
		status, _ := srv.do(t, stdhttp.MethodPost, "/tickets", token, dto.CreateTicketRequest{Title: "t", Text: "body"})
		require.Equal(t, stdhttp.StatusCreated, status)
	}

	status, raw := srv.do(t, stdhttp.MethodGet, "/tickets?limit=1", user, nil)
	require.Equal(t, stdhttp.StatusOK, status)
	page := decode[dto.PageResponse[dto.TicketResponse]](t, raw)
	require.Len(t, page.Data, 1)
	require.NotEmpty(t, page.NextCursor)

	status, raw = srv.do(t, stdhttp.MethodGet, "/tickets?limit=1&cursor="+page.NextCursor, user, nil)
	require.Equal(t, stdhttp.StatusOK, status)
	page = decode[dto.PageResponse[dto.TicketResponse]](t, raw)
	require.Len(t, page.Data, 1)
	assert.Empty(t, page.NextCursor)

	status, raw = srv.do(t, stdhttp.MethodGet, "/admin/tickets", admin, nil)
	require.Equal(t, stdhttp.StatusOK, status)
	assert.Len(t, decode[dto.PageResponse[dto.TicketResponse]](t, raw).Data, 3)

	status, raw = srv.do(t, stdhttp.MethodGet, "/admin/tickets", user, nil)
	assert.Equal(t, stdhttp.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", decode[dto.ErrorResponse](t, raw).Error.Code)
}

func TestErrorEnvelope(t *testing.T) {
	srv := newTestServer(t)
	user := srv.token(t, userIdentity)

	status, raw := srv.do(t, stdhttp.MethodGet, "/tickets", "", nil)
	assert.Equal(t, stdhttp.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", decode[dto.ErrorResponse](t, raw).Error.Code)

	status, raw = srv.do(t, stdhttp.MethodPost, "/tickets", user, dto.CreateTicketRequest{Title: "", Text: "x"})
	assert.Equal(t, stdhttp.StatusBadRequest, status)
	body := decode[dto.ErrorResponse](t, raw)
	assert.Equal(t, "VALIDATION_FAILED", body.Error.Code)
	assert.Equal(t, "title", body.Error.Details["field"])

	status, raw = srv.do(t, stdhttp.MethodGet, "/tickets/does-not-exist", user, nil)
	assert.Equal(t, stdhttp.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", decode[dto.ErrorResponse](t, raw).Error.Code)

	status, _ = srv.do(t, stdhttp.MethodGet, "/tickets?limit=zero", user, nil)
	assert.Equal(t, stdhttp.StatusBadRequest, status)

	status, raw = srv.do(t, stdhttp.MethodGet, "/nowhere", "", nil)
	assert.Equal(t, stdhttp.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", decode[dto.ErrorResponse](t, raw).Error.Code)
}

func TestProbesMetricsAndUpgrade(t *testing.T) {
	srv := newTestServer(t)

	status, raw := srv.do(t, stdhttp.MethodGet, "/health/live", "", nil)
	assert.Equal(t, stdhttp.StatusOK, status)
	assert.Contains(t, string(raw), "alive")

	status, raw = srv.do(t, stdhttp.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, stdhttp.StatusOK, status)
	assert.Contains(t, string(raw), "ready")

	status, raw = srv.do(t, stdhttp.MethodGet, "/metrics", "", nil)
	assert.Equal(t, stdhttp.StatusOK, status)
	assert.Contains(t, string(raw), "desk_http_requests_total")

	status, _ = srv.do(t, stdhttp.MethodGet, "/ws/tickets", "", nil)
	assert.Equal(t, stdhttp.StatusUpgradeRequired, status)
}
