package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"netimob_lead_router/internal/events"
	"netimob_lead_router/internal/routing/domain"
	"netimob_lead_router/internal/routing/repository"
	"netimob_lead_router/internal/routing/service"
	"netimob_lead_router/platform/apperr"
	"netimob_lead_router/platform/logger"
	"netimob_lead_router/platform/validator"
)

type stubStore struct {
	expired []repository.ExpiredAssignment
	created []repository.CreateAssignmentParams
}

func (s *stubStore) NormalizeFixedBrokerDeadlines(ctx context.Context) (int64, error) {
	return 0, nil
}

func (s *stubStore) ClaimExpired(ctx context.Context, limit int) ([]repository.ExpiredAssignment, error) {
	return s.expired, nil
}

func (s *stubStore) Transition(ctx context.Context, id int64, from, to domain.AssignmentStatus) (bool, error) {
	return true, nil
}

func (s *stubStore) Create(ctx context.Context, p repository.CreateAssignmentParams) (int64, error) {
	s.created = append(s.created, p)
	return int64(len(s.created)), nil
}

func (s *stubStore) GetAssignment(ctx context.Context, id int64) (*domain.Assignment, error) {
	return nil, apperr.NotFound("assignment not found")
}

func (s *stubStore) History(ctx context.Context, leadID int64) ([]domain.HistoryEntry, error) {
	return nil, nil
}

type stubDirectory struct {
	external []domain.Broker
}

func (s *stubDirectory) EligibleBrokers(ctx context.Context, f repository.BrokerFilter) ([]domain.Broker, error) {
	if f.Tier == domain.TierExternal {
		return s.external, nil
	}
	return nil, nil
}

func (s *stubDirectory) OnCallBroker(ctx context.Context, area *domain.Area) (*domain.Broker, error) {
	return nil, nil
}

func (s *stubDirectory) BrokerByID(ctx context.Context, id uuid.UUID) (*domain.Broker, error) {
	return nil, apperr.NotFound("broker not found")
}

type stubLeads struct {
	leads map[int64]*repository.LeadContext
}

func (s *stubLeads) LeadContext(ctx context.Context, leadID int64) (*repository.LeadContext, error) {
	lc, ok := s.leads[leadID]
	if !ok {
		return nil, apperr.NotFound("lead not found")
	}
	return lc, nil
}

type stubParams struct {
	cfg domain.RoutingConfig

	mu      sync.Mutex
	blockCh chan struct{}
}

func (s *stubParams) RoutingConfig(ctx context.Context) (domain.RoutingConfig, error) {
	s.mu.Lock()
	ch := s.blockCh
	s.mu.Unlock()
	if ch != nil {
		<-ch
	}
	return s.cfg, nil
}

type stubProperties struct{}

func (stubProperties) SetPropertyBroker(ctx context.Context, propertyID int64, brokerID uuid.UUID) error {
	return nil
}

type stubBus struct{}

func (stubBus) Publish(ctx context.Context, ev events.Event)           {}
func (stubBus) PublishSync(ctx context.Context, ev events.Event) error { return nil }
func (stubBus) Subscribe(name string, h events.Handler)                {}

type stubEnqueuer struct {
	calls int
	err   error
}

func (s *stubEnqueuer) EnqueueSweep(triggeredBy string) (string, string, error) {
	s.calls++
	return "task-123", "routing", s.err
}

func newTestRouter(t *testing.T, svc *service.Service, enq SweepEnqueuer) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h := New(svc, enq, validator.New())

	r := gin.New()
	v1 := r.Group("/api/v1/routing")
	v1.POST("/sweeps", h.TriggerSweep)
	v1.POST("/sweeps/async", h.TriggerSweepAsync)
	v1.POST("/leads/:id/route", h.RouteLead)
	v1.POST("/leads/:id/assign", h.AssignLead)
	v1.GET("/parameters", h.GetParameters)
	return r
}

func newStubService(store *stubStore, dir *stubDirectory, leads *stubLeads, params *stubParams) *service.Service {
	return service.New(store, dir, leads, params, stubProperties{}, stubBus{}, logger.New("test"), 50)
}

func TestTriggerSweepReturnsSummary(t *testing.T) {
	previous := uuid.New()
	store := &stubStore{expired: []repository.ExpiredAssignment{{AssignmentID: 1, LeadID: 42, BrokerID: previous}}}
	dir := &stubDirectory{external: []domain.Broker{{ID: uuid.New(), Name: "B", Email: "b@example.com", Tier: domain.TierExternal, Active: true}}}
	leads := &stubLeads{leads: map[int64]*repository.LeadContext{42: {LeadID: 42, PropertyID: 1, City: "Curitiba", State: "PR"}}}
	svc := newStubService(store, dir, leads, &stubParams{cfg: domain.DefaultRoutingConfig()})

	r := newTestRouter(t, svc, &stubEnqueuer{})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/routing/sweeps", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var sum service.Summary
	if err := json.Unmarshal(w.Body.Bytes(), &sum); err != nil {
		t.Fatalf("decoding summary: %v", err)
	}
	if sum.Expired != 1 || sum.Rerouted != 1 {
		t.Errorf("unexpected summary: %+v", sum)
	}
}

func TestTriggerSweepConflictsWhileRunning(t *testing.T) {
	params := &stubParams{cfg: domain.DefaultRoutingConfig(), blockCh: make(chan struct{})}
	svc := newStubService(&stubStore{}, &stubDirectory{}, &stubLeads{}, params)
	r := newTestRouter(t, svc, &stubEnqueuer{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/routing/sweeps", nil))
	}()

	// Wait until the first sweep holds the guard.
	deadline := time.After(2 * time.Second)
	for !svc.Running() {
		select {
		case <-deadline:
			t.Fatal("first sweep never started")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/routing/sweeps", nil))
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 while a sweep is running, got %d", w.Code)
	}

	close(params.blockCh)
	<-done
}

func TestTriggerSweepAsyncReturnsTaskID(t *testing.T) {
	svc := newStubService(&stubStore{}, &stubDirectory{}, &stubLeads{}, &stubParams{cfg: domain.DefaultRoutingConfig()})
	enq := &stubEnqueuer{}
	r := newTestRouter(t, svc, enq)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/routing/sweeps/async", nil))

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	if enq.calls != 1 {
		t.Errorf("expected one enqueue call, got %d", enq.calls)
	}

	var resp struct {
		TaskID string `json:"taskId"`
		Queue  string `json:"queue"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.TaskID != "task-123" || resp.Queue != "routing" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestRouteLeadRejectsBadID(t *testing.T) {
	svc := newStubService(&stubStore{}, &stubDirectory{}, &stubLeads{}, &stubParams{cfg: domain.DefaultRoutingConfig()})
	r := newTestRouter(t, svc, &stubEnqueuer{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/routing/leads/abc/route", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestRouteLeadUnknownLeadIs404(t *testing.T) {
	svc := newStubService(&stubStore{}, &stubDirectory{}, &stubLeads{leads: map[int64]*repository.LeadContext{}}, &stubParams{cfg: domain.DefaultRoutingConfig()})
	r := newTestRouter(t, svc, &stubEnqueuer{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/routing/leads/99/route", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestAssignLeadValidatesBrokerID(t *testing.T) {
	svc := newStubService(&stubStore{}, &stubDirectory{}, &stubLeads{}, &stubParams{cfg: domain.DefaultRoutingConfig()})
	r := newTestRouter(t, svc, &stubEnqueuer{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/routing/leads/7/assign", strings.NewReader(`{"brokerId":"not-a-uuid"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed broker id, got %d", w.Code)
	}
}

func TestGetParametersSnapshot(t *testing.T) {
	cfg := domain.DefaultRoutingConfig()
	cfg.ExternalSLAMinutes = 45
	svc := newStubService(&stubStore{}, &stubDirectory{}, &stubLeads{}, &stubParams{cfg: cfg})
	r := newTestRouter(t, svc, &stubEnqueuer{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/routing/parameters", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp["externalSlaMinutes"].(float64) != 45 {
		t.Errorf("unexpected parameters payload: %v", resp)
	}
}
