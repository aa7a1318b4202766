package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"netimob_lead_router/internal/events"
	"netimob_lead_router/internal/routing/domain"
	"netimob_lead_router/internal/routing/repository"
	"netimob_lead_router/platform/apperr"
	"netimob_lead_router/platform/logger"
)

type fakeStore struct {
	mu           sync.Mutex
	expired      []repository.ExpiredAssignment
	claimErr     error
	history      map[int64][]domain.HistoryEntry
	historyErr   map[int64]error
	created      []repository.CreateAssignmentParams
	createErr    map[int64]error
	nextID       int64
	normalized   int64
	normalizeErr error

	assignments  map[int64]*domain.Assignment
	transitions  []string
	transitionOK bool
}

func (f *fakeStore) NormalizeFixedBrokerDeadlines(ctx context.Context) (int64, error) {
	return f.normalized, f.normalizeErr
}

func (f *fakeStore) ClaimExpired(ctx context.Context, limit int) ([]repository.ExpiredAssignment, error) {
	if f.claimErr != nil {
		return nil, f.claimErr
	}
	if len(f.expired) > limit {
		return f.expired[:limit], nil
	}
	return f.expired, nil
}

func (f *fakeStore) Transition(ctx context.Context, id int64, from, to domain.AssignmentStatus) (bool, error) {
	f.transitions = append(f.transitions, fmt.Sprintf("%d:%s->%s", id, from, to))
	return f.transitionOK, nil
}

func (f *fakeStore) GetAssignment(ctx context.Context, id int64) (*domain.Assignment, error) {
	a, ok := f.assignments[id]
	if !ok {
		return nil, apperr.NotFound("assignment not found")
	}
	return a, nil
}

func (f *fakeStore) Create(ctx context.Context, p repository.CreateAssignmentParams) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.createErr[p.LeadID]; err != nil {
		return 0, err
	}
	f.created = append(f.created, p)
	f.nextID++
	return f.nextID, nil
}

func (f *fakeStore) History(ctx context.Context, leadID int64) ([]domain.HistoryEntry, error) {
	if err := f.historyErr[leadID]; err != nil {
		return nil, err
	}
	return f.history[leadID], nil
}

type fakeDirectory struct {
	brokers map[domain.Tier][]domain.Broker
	onCall  *domain.Broker
}

func (f *fakeDirectory) EligibleBrokers(ctx context.Context, filter repository.BrokerFilter) ([]domain.Broker, error) {
	excluded := make(map[uuid.UUID]bool, len(filter.ExcludeIDs))
	for _, id := range filter.ExcludeIDs {
		excluded[id] = true
	}
	var out []domain.Broker
	for _, b := range f.brokers[filter.Tier] {
		if excluded[b.ID] {
			continue
		}
		out = append(out, b)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (f *fakeDirectory) OnCallBroker(ctx context.Context, area *domain.Area) (*domain.Broker, error) {
	return f.onCall, nil
}

func (f *fakeDirectory) BrokerByID(ctx context.Context, id uuid.UUID) (*domain.Broker, error) {
	for _, bs := range f.brokers {
		for _, b := range bs {
			if b.ID == id {
				return &b, nil
			}
		}
	}
	if f.onCall != nil && f.onCall.ID == id {
		return f.onCall, nil
	}
	return nil, apperr.NotFound("broker not found")
}

type fakeLeads struct {
	leads map[int64]*repository.LeadContext
}

func (f *fakeLeads) LeadContext(ctx context.Context, leadID int64) (*repository.LeadContext, error) {
	lc, ok := f.leads[leadID]
	if !ok {
		return nil, apperr.NotFound("lead not found")
	}
	return lc, nil
}

type fakeParams struct {
	cfg domain.RoutingConfig
	err error
}

func (f *fakeParams) RoutingConfig(ctx context.Context) (domain.RoutingConfig, error) {
	return f.cfg, f.err
}

type fakeProperties struct {
	updates map[int64]uuid.UUID
}

func (f *fakeProperties) SetPropertyBroker(ctx context.Context, propertyID int64, brokerID uuid.UUID) error {
	if f.updates == nil {
		f.updates = make(map[int64]uuid.UUID)
	}
	f.updates[propertyID] = brokerID
	return nil
}

type fakeBus struct {
	mu       sync.Mutex
	events   []events.Event
	syncErrs map[string]error
}

func (f *fakeBus) Publish(ctx context.Context, ev events.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

func (f *fakeBus) PublishSync(ctx context.Context, ev events.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return f.syncErrs[ev.EventName()]
}

func (f *fakeBus) Subscribe(name string, h events.Handler) {}

func (f *fakeBus) eventNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, len(f.events))
	for i, ev := range f.events {
		names[i] = ev.EventName()
	}
	return names
}

func testLead(id, propertyID int64) *repository.LeadContext {
	return &repository.LeadContext{
		LeadID:      id,
		PropertyID:  propertyID,
		City:        "Curitiba",
		State:       "PR",
		ClientName:  "Cliente Teste",
		ClientEmail: "cliente@example.com",
		CreatedAt:   time.Now(),
	}
}

func testBroker(tier domain.Tier) domain.Broker {
	return domain.Broker{
		ID:     uuid.New(),
		Name:   "Broker " + string(tier),
		Email:  string(tier) + "@example.com",
		Tier:   tier,
		Active: true,
	}
}

func newTestService(store *fakeStore, dir *fakeDirectory, leads *fakeLeads, params *fakeParams, props *fakeProperties, bus *fakeBus) *Service {
	return New(store, dir, leads, params, props, bus, logger.New("test"), 50)
}

func TestSweepReroutesExpiredLeads(t *testing.T) {
	external := testBroker(domain.TierExternal)
	previous := uuid.New()

	store := &fakeStore{
		expired: []repository.ExpiredAssignment{
			{AssignmentID: 1, LeadID: 42, BrokerID: previous},
		},
		history: map[int64][]domain.HistoryEntry{
			42: {{BrokerID: previous, BrokerTier: domain.TierExternal, ReasonKind: domain.ReasonEscalation, Status: domain.StatusExpired, CreatedAt: time.Now()}},
		},
	}
	dir := &fakeDirectory{brokers: map[domain.Tier][]domain.Broker{domain.TierExternal: {external}}}
	leads := &fakeLeads{leads: map[int64]*repository.LeadContext{42: testLead(42, 7)}}
	bus := &fakeBus{}

	svc := newTestService(store, dir, leads, &fakeParams{cfg: domain.DefaultRoutingConfig()}, &fakeProperties{}, bus)

	sum, err := svc.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep returned error: %v", err)
	}
	if sum.Expired != 1 || sum.Rerouted != 1 || sum.Exhausted != 0 || sum.Failures != 0 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if len(store.created) != 1 {
		t.Fatalf("expected 1 assignment created, got %d", len(store.created))
	}
	created := store.created[0]
	if created.BrokerID != external.ID {
		t.Errorf("expected assignment to external broker, got %s", created.BrokerID)
	}
	if created.Reason.Kind != domain.ReasonEscalation {
		t.Errorf("expected escalation reason, got %s", created.Reason.Kind)
	}
	if created.Reason.PreviousBrokerID == nil || *created.Reason.PreviousBrokerID != previous {
		t.Errorf("expected previous broker %s in reason", previous)
	}
	if created.ExpiresAt == nil {
		t.Error("expected a deadline on an external assignment")
	}
}

func TestSweepRejectsOverlappingRun(t *testing.T) {
	svc := newTestService(&fakeStore{}, &fakeDirectory{}, &fakeLeads{}, &fakeParams{cfg: domain.DefaultRoutingConfig()}, &fakeProperties{}, &fakeBus{})

	svc.running.Store(true)
	_, err := svc.Sweep(context.Background())
	if !errors.Is(err, ErrSweepInProgress) {
		t.Fatalf("expected ErrSweepInProgress, got %v", err)
	}

	svc.running.Store(false)
	if _, err := svc.Sweep(context.Background()); err != nil {
		t.Fatalf("expected sweep to run after guard release, got %v", err)
	}
}

func TestSweepIsolatesPerLeadFailures(t *testing.T) {
	external := testBroker(domain.TierExternal)
	store := &fakeStore{
		expired: []repository.ExpiredAssignment{
			{AssignmentID: 1, LeadID: 1, BrokerID: uuid.New()},
			{AssignmentID: 2, LeadID: 2, BrokerID: uuid.New()},
		},
		history:   map[int64][]domain.HistoryEntry{},
		createErr: map[int64]error{1: errors.New("insert failed")},
	}
	dir := &fakeDirectory{brokers: map[domain.Tier][]domain.Broker{domain.TierExternal: {external, testBroker(domain.TierExternal)}}}
	leads := &fakeLeads{leads: map[int64]*repository.LeadContext{1: testLead(1, 10), 2: testLead(2, 20)}}

	svc := newTestService(store, dir, leads, &fakeParams{cfg: domain.DefaultRoutingConfig()}, &fakeProperties{}, &fakeBus{})

	sum, err := svc.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep returned error: %v", err)
	}
	if sum.Failures != 1 {
		t.Errorf("expected 1 failure, got %d", sum.Failures)
	}
	if sum.Rerouted != 1 {
		t.Errorf("expected the healthy lead re-routed, got %d", sum.Rerouted)
	}
}

func TestSweepCountsNotificationFailuresWithoutAborting(t *testing.T) {
	external := testBroker(domain.TierExternal)
	store := &fakeStore{
		expired: []repository.ExpiredAssignment{{AssignmentID: 1, LeadID: 5, BrokerID: uuid.New()}},
		history: map[int64][]domain.HistoryEntry{},
	}
	dir := &fakeDirectory{brokers: map[domain.Tier][]domain.Broker{domain.TierExternal: {external}}}
	leads := &fakeLeads{leads: map[int64]*repository.LeadContext{5: testLead(5, 50)}}
	bus := &fakeBus{syncErrs: map[string]error{
		events.AssignmentExpired{}.EventName(): errors.New("smtp down"),
		events.LeadRouted{}.EventName():        errors.New("smtp down"),
	}}

	svc := newTestService(store, dir, leads, &fakeParams{cfg: domain.DefaultRoutingConfig()}, &fakeProperties{}, bus)

	sum, err := svc.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep returned error: %v", err)
	}
	if sum.NotificationFailures != 2 {
		t.Errorf("expected 2 notification failures, got %d", sum.NotificationFailures)
	}
	if sum.Rerouted != 1 {
		t.Errorf("notification failure must not block re-routing, got %d rerouted", sum.Rerouted)
	}
	if len(store.created) != 1 {
		t.Errorf("expected assignment created despite notifier failure")
	}
}

func TestSweepEscalatesToOnCallAndHandsOverProperty(t *testing.T) {
	onCall := testBroker(domain.TierInternal)
	onCall.OnCall = true

	previous := uuid.New()
	cfg := domain.DefaultRoutingConfig()
	cfg.ExternalFanOut = 1
	cfg.InternalFanOut = 1

	history := []domain.HistoryEntry{
		{BrokerID: previous, BrokerTier: domain.TierExternal, ReasonKind: domain.ReasonEscalation, Status: domain.StatusExpired, CreatedAt: time.Now().Add(-2 * time.Hour)},
		{BrokerID: uuid.New(), BrokerTier: domain.TierInternal, ReasonKind: domain.ReasonEscalation, Status: domain.StatusExpired, CreatedAt: time.Now().Add(-time.Hour)},
	}
	store := &fakeStore{
		expired: []repository.ExpiredAssignment{{AssignmentID: 3, LeadID: 9, BrokerID: previous}},
		history: map[int64][]domain.HistoryEntry{9: history},
	}
	dir := &fakeDirectory{onCall: &onCall}
	leads := &fakeLeads{leads: map[int64]*repository.LeadContext{9: testLead(9, 90)}}
	props := &fakeProperties{}

	svc := newTestService(store, dir, leads, &fakeParams{cfg: cfg}, props, &fakeBus{})

	sum, err := svc.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep returned error: %v", err)
	}
	if sum.AutoAccepted != 1 {
		t.Fatalf("expected on-call auto-accept, got %+v", sum)
	}
	created := store.created[0]
	if created.Status != domain.StatusAccepted {
		t.Errorf("expected accepted status, got %s", created.Status)
	}
	if created.ExpiresAt != nil {
		t.Error("on-call assignment must not carry a deadline")
	}
	if props.updates[90] != onCall.ID {
		t.Errorf("expected property 90 handed to on-call broker, got %v", props.updates)
	}
}

func TestSweepRecordsExhaustion(t *testing.T) {
	cfg := domain.DefaultRoutingConfig()
	cfg.OnCallEscalationEnabled = false
	cfg.ExternalFanOut = 1
	cfg.InternalFanOut = 1

	previous := uuid.New()
	store := &fakeStore{
		expired: []repository.ExpiredAssignment{{AssignmentID: 4, LeadID: 11, BrokerID: previous}},
		history: map[int64][]domain.HistoryEntry{11: {
			{BrokerID: previous, BrokerTier: domain.TierExternal, ReasonKind: domain.ReasonEscalation, Status: domain.StatusExpired, CreatedAt: time.Now().Add(-time.Hour)},
			{BrokerID: uuid.New(), BrokerTier: domain.TierInternal, ReasonKind: domain.ReasonEscalation, Status: domain.StatusExpired, CreatedAt: time.Now()},
		}},
	}
	leads := &fakeLeads{leads: map[int64]*repository.LeadContext{11: testLead(11, 110)}}
	bus := &fakeBus{}

	svc := newTestService(store, &fakeDirectory{}, leads, &fakeParams{cfg: cfg}, &fakeProperties{}, bus)

	sum, err := svc.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep returned error: %v", err)
	}
	if sum.Exhausted != 1 || sum.Rerouted != 0 {
		t.Fatalf("expected exhaustion, got %+v", sum)
	}

	var sawExhausted bool
	for _, name := range bus.eventNames() {
		if name == (events.LeadExhausted{}).EventName() {
			sawExhausted = true
		}
	}
	if !sawExhausted {
		t.Error("expected a lead exhausted event")
	}
}

func TestRouteNewLeadAssignsFixedBroker(t *testing.T) {
	owner := testBroker(domain.TierInternal)
	lead := testLead(3, 30)
	lead.FixedBrokerID = &owner.ID

	store := &fakeStore{history: map[int64][]domain.HistoryEntry{}}
	dir := &fakeDirectory{brokers: map[domain.Tier][]domain.Broker{domain.TierInternal: {owner}}}
	leads := &fakeLeads{leads: map[int64]*repository.LeadContext{3: lead}}

	svc := newTestService(store, dir, leads, &fakeParams{cfg: domain.DefaultRoutingConfig()}, &fakeProperties{}, &fakeBus{})

	res, err := svc.RouteNewLead(context.Background(), 3)
	if err != nil {
		t.Fatalf("RouteNewLead returned error: %v", err)
	}
	if !res.AutoAccepted {
		t.Error("fixed-broker assignment must auto-accept")
	}
	if res.BrokerID == nil || *res.BrokerID != owner.ID {
		t.Errorf("expected owner broker, got %v", res.BrokerID)
	}
	created := store.created[0]
	if created.Reason.Kind != domain.ReasonFixedBroker {
		t.Errorf("expected fixed_broker reason, got %s", created.Reason.Kind)
	}
	if created.ExpiresAt != nil {
		t.Error("fixed-broker assignment must not carry a deadline")
	}
}

func TestRouteNewLeadHonorsExemptionFlag(t *testing.T) {
	owner := testBroker(domain.TierInternal)
	external := testBroker(domain.TierExternal)
	lead := testLead(4, 40)
	lead.FixedBrokerID = &owner.ID

	cfg := domain.DefaultRoutingConfig()
	cfg.FixedBrokerRoutingExempt = false

	store := &fakeStore{history: map[int64][]domain.HistoryEntry{}}
	dir := &fakeDirectory{brokers: map[domain.Tier][]domain.Broker{domain.TierExternal: {external}}}
	leads := &fakeLeads{leads: map[int64]*repository.LeadContext{4: lead}}

	svc := newTestService(store, dir, leads, &fakeParams{cfg: cfg}, &fakeProperties{}, &fakeBus{})

	res, err := svc.RouteNewLead(context.Background(), 4)
	if err != nil {
		t.Fatalf("RouteNewLead returned error: %v", err)
	}
	if res.AutoAccepted {
		t.Error("exemption disabled, lead must enter the cascade")
	}
	if res.Tier != string(domain.TierExternal) {
		t.Errorf("expected external tier, got %q", res.Tier)
	}
}

func TestAssignLeadCreatesManualAssignment(t *testing.T) {
	chosen := testBroker(domain.TierInternal)

	store := &fakeStore{history: map[int64][]domain.HistoryEntry{}}
	dir := &fakeDirectory{brokers: map[domain.Tier][]domain.Broker{domain.TierInternal: {chosen}}}
	leads := &fakeLeads{leads: map[int64]*repository.LeadContext{7: testLead(7, 70)}}
	bus := &fakeBus{}

	svc := newTestService(store, dir, leads, &fakeParams{cfg: domain.DefaultRoutingConfig()}, &fakeProperties{}, bus)

	res, err := svc.AssignLead(context.Background(), 7, chosen.ID)
	if err != nil {
		t.Fatalf("AssignLead returned error: %v", err)
	}
	if !res.AutoAccepted {
		t.Error("operator assignment must auto-accept")
	}
	if len(store.created) != 1 {
		t.Fatalf("expected 1 assignment created, got %d", len(store.created))
	}
	created := store.created[0]
	if created.Reason.Kind != domain.ReasonManual {
		t.Errorf("expected manual reason, got %s", created.Reason.Kind)
	}
	if created.ExpiresAt != nil {
		t.Error("operator assignment must not carry a deadline")
	}
	names := bus.eventNames()
	if len(names) != 1 || names[0] != (events.LeadRouted{}).EventName() {
		t.Errorf("expected a lead routed event, got %v", names)
	}
}

func TestAssignLeadRejectsInactiveBroker(t *testing.T) {
	inactive := testBroker(domain.TierExternal)
	inactive.Active = false

	store := &fakeStore{history: map[int64][]domain.HistoryEntry{}}
	dir := &fakeDirectory{brokers: map[domain.Tier][]domain.Broker{domain.TierExternal: {inactive}}}
	leads := &fakeLeads{leads: map[int64]*repository.LeadContext{7: testLead(7, 70)}}

	svc := newTestService(store, dir, leads, &fakeParams{cfg: domain.DefaultRoutingConfig()}, &fakeProperties{}, &fakeBus{})

	_, err := svc.AssignLead(context.Background(), 7, inactive.ID)
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for inactive broker, got %v", err)
	}
	if len(store.created) != 0 {
		t.Errorf("expected no assignment created, got %d", len(store.created))
	}
}

func TestAcceptAssignmentTransitionsAndNotifies(t *testing.T) {
	brokerID := uuid.New()
	store := &fakeStore{
		transitionOK: true,
		assignments: map[int64]*domain.Assignment{
			8: {ID: 8, LeadID: 3, BrokerID: brokerID, Status: domain.StatusAssigned},
		},
	}
	bus := &fakeBus{}
	svc := newTestService(store, &fakeDirectory{}, &fakeLeads{}, &fakeParams{cfg: domain.DefaultRoutingConfig()}, &fakeProperties{}, bus)

	if err := svc.AcceptAssignment(context.Background(), 8); err != nil {
		t.Fatalf("AcceptAssignment returned error: %v", err)
	}
	if len(store.transitions) != 1 || store.transitions[0] != "8:assigned->accepted" {
		t.Errorf("unexpected transitions: %v", store.transitions)
	}
	names := bus.eventNames()
	if len(names) != 1 || names[0] != (events.AssignmentAccepted{}).EventName() {
		t.Errorf("expected an accepted event, got %v", names)
	}
}

func TestAcceptAssignmentConflictsAfterExpiry(t *testing.T) {
	store := &fakeStore{
		assignments: map[int64]*domain.Assignment{
			8: {ID: 8, LeadID: 3, BrokerID: uuid.New(), Status: domain.StatusExpired},
		},
	}
	svc := newTestService(store, &fakeDirectory{}, &fakeLeads{}, &fakeParams{cfg: domain.DefaultRoutingConfig()}, &fakeProperties{}, &fakeBus{})

	err := svc.AcceptAssignment(context.Background(), 8)
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict for expired assignment, got %v", err)
	}
}

func TestRejectAssignmentReroutes(t *testing.T) {
	rejecting := uuid.New()
	fresh := testBroker(domain.TierExternal)

	store := &fakeStore{
		transitionOK: true,
		assignments: map[int64]*domain.Assignment{
			9: {ID: 9, LeadID: 6, BrokerID: rejecting, Status: domain.StatusAssigned},
		},
		history: map[int64][]domain.HistoryEntry{
			6: {{BrokerID: rejecting, BrokerTier: domain.TierExternal, ReasonKind: domain.ReasonEscalation, Status: domain.StatusRejected, CreatedAt: time.Now()}},
		},
	}
	dir := &fakeDirectory{brokers: map[domain.Tier][]domain.Broker{domain.TierExternal: {fresh}}}
	leads := &fakeLeads{leads: map[int64]*repository.LeadContext{6: testLead(6, 60)}}

	svc := newTestService(store, dir, leads, &fakeParams{cfg: domain.DefaultRoutingConfig()}, &fakeProperties{}, &fakeBus{})

	res, err := svc.RejectAssignment(context.Background(), 9)
	if err != nil {
		t.Fatalf("RejectAssignment returned error: %v", err)
	}
	if res.BrokerID == nil || *res.BrokerID != fresh.ID {
		t.Errorf("expected re-route to the fresh broker, got %v", res.BrokerID)
	}
	if len(store.created) != 1 {
		t.Fatalf("expected a new assignment, got %d", len(store.created))
	}
	if got := store.created[0].Reason.PreviousBrokerID; got == nil || *got != rejecting {
		t.Errorf("expected rejecting broker recorded as previous, got %v", got)
	}
}

func TestRouteNewLeadExcludesTriedBrokers(t *testing.T) {
	tried := testBroker(domain.TierExternal)
	fresh := testBroker(domain.TierExternal)

	store := &fakeStore{history: map[int64][]domain.HistoryEntry{
		6: {{BrokerID: tried.ID, BrokerTier: domain.TierExternal, ReasonKind: domain.ReasonEscalation, Status: domain.StatusExpired, CreatedAt: time.Now()}},
	}}
	dir := &fakeDirectory{brokers: map[domain.Tier][]domain.Broker{domain.TierExternal: {tried, fresh}}}
	leads := &fakeLeads{leads: map[int64]*repository.LeadContext{6: testLead(6, 60)}}

	cfg := domain.DefaultRoutingConfig()
	cfg.ExternalFanOut = 3
	svc := newTestService(store, dir, leads, &fakeParams{cfg: cfg}, &fakeProperties{}, &fakeBus{})

	res, err := svc.RouteNewLead(context.Background(), 6)
	if err != nil {
		t.Fatalf("RouteNewLead returned error: %v", err)
	}
	if res.BrokerID == nil || *res.BrokerID != fresh.ID {
		t.Errorf("expected the untried broker, got %v", res.BrokerID)
	}
}
