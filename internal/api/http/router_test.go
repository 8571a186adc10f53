package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/complaint-service/internal/api/dto"
	"github.com/spec-kit/complaint-service/internal/api/http/handlers"
	"github.com/spec-kit/complaint-service/internal/auth"
	"github.com/spec-kit/complaint-service/internal/domain"
	"github.com/spec-kit/complaint-service/internal/events"
	"github.com/spec-kit/complaint-service/internal/observability"
	"github.com/spec-kit/complaint-service/internal/repository"
	"github.com/spec-kit/complaint-service/internal/service"
)

type testServer struct {
	app      *fiber.App
	tokens   *auth.TokenManager
	presence *recordingPresence
}

type recordingPresence struct {
	mu    sync.Mutex
	users []string
	ttl   time.Duration
	err   error
}

func (p *recordingPresence) MarkOnline(_ context.Context, userID string, ttl time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.users = append(p.users, userID)
	p.ttl = ttl
	return nil
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	tokens := auth.NewTokenManager("test-secret", time.Hour)

	svc := service.NewTicketService(service.TicketDependencies{
		TicketRepo:   repository.NewMemoryTicketRepository(),
		MessageRepo:  repository.NewMemoryMessageRepository(),
		Audit:        repository.NewMemoryAuditLog(),
		Dispatcher:   events.NewInMemoryDispatcher(logger),
		ReopenWindow: domain.DefaultReopenWindow,
		Logger:       logger,
		Metrics:      metrics,
	})

	presence := &recordingPresence{}
	app := fiber.New()
	RegisterMiddlewares(app, logger, metrics, time.Second)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("complaint-service", "test", nil),
		Complaints:     handlers.NewComplaintsHandler(svc),
		Sessions:       handlers.NewSessionHandler(presence, 90*time.Second),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
		Metrics:        metrics,
	})
	return &testServer{app: app, tokens: tokens, presence: presence}
}

func (s *testServer) do(t *testing.T, method, path, userID string, role domain.Role, body any) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		token, _, err := s.tokens.GenerateToken(userID, role)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out
}

func decodeComplaint(t *testing.T, raw []byte) dto.ComplaintResponse {
	t.Helper()
	var env struct {
		Data dto.ComplaintResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &env))
	return env.Data
}

func errorCode(t *testing.T, raw []byte) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(raw, &env))
	return env.Error.Code
}

func TestComplaintRoutes_Lifecycle(t *testing.T) {
	s := newTestServer(t)

	status, raw := s.do(t, "POST", "/complaints", "res-1", domain.RoleResident, dto.CreateComplaintRequest{
		Title: "Broken heater", UnitID: "unit-4", Priority: domain.TicketPriorityHigh,
	})
	require.Equal(t, fiber.StatusCreated, status, string(raw))
	created := decodeComplaint(t, raw)
	assert.Equal(t, domain.TicketStatusOpen, created.Status)
	base := "/complaints/" + created.ID

	status, _ = s.do(t, "GET", base, "res-2", domain.RoleResident, nil)
	assert.Equal(t, fiber.StatusForbidden, status)

	status, _ = s.do(t, "POST", base+"/assign", "res-1", domain.RoleResident, dto.AssignRequest{HandlerID: "hdl-1"})
	assert.Equal(t, fiber.StatusForbidden, status)

	status, raw = s.do(t, "POST", base+"/assign", "adm-1", domain.RoleAdmin, dto.AssignRequest{HandlerID: "hdl-1"})
	require.Equal(t, fiber.StatusOK, status, string(raw))
	assigned := decodeComplaint(t, raw)
	assert.Equal(t, domain.TicketStatusAssigned, assigned.Status)
	require.NotNil(t, assigned.AssignedHandlerID)
	assert.Equal(t, "hdl-1", *assigned.AssignedHandlerID)

	status, raw = s.do(t, "POST", base+"/transitions", "hdl-1", domain.RoleHandler, dto.TransitionRequest{ToStatus: "IN_PROGRESS"})
	require.Equal(t, fiber.StatusOK, status, string(raw))

	status, raw = s.do(t, "POST", base+"/transitions", "hdl-1", domain.RoleHandler, dto.TransitionRequest{ToStatus: "CLOSED"})
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)
	assert.Equal(t, string(domain.DenialInvalidTransition), errorCode(t, raw))

	status, raw = s.do(t, "POST", base+"/transitions", "hdl-1", domain.RoleHandler, dto.TransitionRequest{ToStatus: "ARCHIVED"})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(t, raw))

	status, _ = s.do(t, "POST", base+"/work-updates", "res-1", domain.RoleResident, dto.CreateMessageRequest{Body: "done?"})
	assert.Equal(t, fiber.StatusForbidden, status)

	status, _ = s.do(t, "POST", base+"/work-updates", "hdl-1", domain.RoleHandler, dto.CreateMessageRequest{Body: "parts ordered"})
	assert.Equal(t, fiber.StatusCreated, status)

	status, _ = s.do(t, "POST", base+"/comments", "res-1", domain.RoleResident, dto.CreateMessageRequest{Body: "thanks"})
	assert.Equal(t, fiber.StatusCreated, status)

	status, raw = s.do(t, "POST", base+"/comments", "res-1", domain.RoleResident, dto.CreateMessageRequest{Body: "  "})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(t, raw))

	status, raw = s.do(t, "GET", base+"/messages", "res-1", domain.RoleResident, nil)
	require.Equal(t, fiber.StatusOK, status)
	var msgs struct {
		Data []dto.MessageResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &msgs))
	assert.Len(t, msgs.Data, 2)

	status, raw = s.do(t, "GET", base+"/history", "adm-1", domain.RoleAdmin, nil)
	require.Equal(t, fiber.StatusOK, status)
	var hist struct {
		Data []dto.TransitionRecordResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &hist))
	require.Len(t, hist.Data, 3)
	assert.Nil(t, hist.Data[0].FromStatus)
	assert.Equal(t, domain.TicketStatusInProgress, hist.Data[2].ToStatus)
}

func TestComplaintRoutes_Errors(t *testing.T) {
	s := newTestServer(t)

	status, _ := s.do(t, "GET", "/complaints/missing", "", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, raw := s.do(t, "GET", "/complaints/missing", "adm-1", domain.RoleAdmin, nil)
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, string(domain.DenialTicketNotFound), errorCode(t, raw))

	status, _ = s.do(t, "POST", "/complaints", "hdl-1", domain.RoleHandler, dto.CreateComplaintRequest{Title: "x"})
	assert.Equal(t, fiber.StatusForbidden, status)

	status, _ = s.do(t, "GET", "/complaints/overdue", "res-1", domain.RoleResident, nil)
	assert.Equal(t, fiber.StatusForbidden, status)

	status, raw = s.do(t, "GET", "/complaints/overdue", "adm-1", domain.RoleAdmin, nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.JSONEq(t, `{"data":[]}`, string(raw))
}

func TestOperationalRoutes(t *testing.T) {
	s := newTestServer(t)

	status, _ := s.do(t, "GET", "/health/live", "", "", nil)
	assert.Equal(t, fiber.StatusOK, status)

	status, _ = s.do(t, "GET", "/health/ready", "", "", nil)
	assert.Equal(t, fiber.StatusOK, status)

	s.do(t, "GET", "/complaints/missing", "adm-1", domain.RoleAdmin, nil)
	status, raw := s.do(t, "GET", "/metrics", "", "", nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, string(raw), "complaints_http_requests_total")
	assert.Contains(t, string(raw), `code="TICKET_NOT_FOUND"`)
}

func TestSessionHeartbeat(t *testing.T) {
	s := newTestServer(t)

	status, _ := s.do(t, "POST", "/sessions/heartbeat", "", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, raw := s.do(t, "POST", "/sessions/heartbeat", "res-1", domain.RoleResident, nil)
	require.Equal(t, fiber.StatusOK, status, string(raw))
	assert.JSONEq(t, `{"data":{"online":true,"expires_in_seconds":90}}`, string(raw))
	assert.Equal(t, []string{"res-1"}, s.presence.users)
	assert.Equal(t, 90*time.Second, s.presence.ttl)

	s.presence.err = errors.New("redis down")
	status, raw = s.do(t, "POST", "/sessions/heartbeat", "res-1", domain.RoleResident, nil)
	assert.Equal(t, fiber.StatusServiceUnavailable, status)
	assert.Equal(t, "PRESENCE_UNAVAILABLE", errorCode(t, raw))
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t)

	status, raw := s.do(t, "GET", "/tickets", "", "", nil)
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(t, raw))
}
