// Package service orchestrates SLA sweeps and lead routing decisions.
// All persistence goes through the repository interfaces; all tier logic
// lives in the domain Guardian.
package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"netimob_lead_router/internal/events"
	"netimob_lead_router/internal/routing/domain"
	"netimob_lead_router/internal/routing/repository"
	"netimob_lead_router/platform/apperr"
	"netimob_lead_router/platform/logger"
)

// ErrSweepInProgress is returned when a sweep is requested while another
// one is still running in this process.
var ErrSweepInProgress = apperr.Conflict("a sweep is already in progress")

// Summary is the outcome of one sweep tick.
type Summary struct {
	Expired              int `json:"expired"`
	Rerouted             int `json:"rerouted"`
	AutoAccepted         int `json:"autoAccepted"`
	Exhausted            int `json:"exhausted"`
	Failures             int `json:"failures"`
	NotificationFailures int `json:"notificationFailures"`
}

// RouteResult is the outcome of routing a single lead.
type RouteResult struct {
	LeadID       int64      `json:"leadId"`
	AssignmentID int64      `json:"assignmentId,omitempty"`
	BrokerID     *uuid.UUID `json:"brokerId,omitempty"`
	Tier         string     `json:"tier,omitempty"`
	Status       string     `json:"status,omitempty"`
	AutoAccepted bool       `json:"autoAccepted"`
	Exhausted    bool       `json:"exhausted"`
	Skipped      bool       `json:"skipped"`
	Detail       string     `json:"detail,omitempty"`
}

// Service is the routing engine entrypoint shared by the scheduler loop,
// the asynq worker and the HTTP trigger.
type Service struct {
	store      repository.AssignmentStore
	directory  repository.BrokerDirectory
	leads      repository.LeadReader
	params     repository.ParameterReader
	properties repository.PropertyWriter
	bus        events.Bus
	log        *logger.Logger
	batchSize  int

	running atomic.Bool
}

// New creates the routing service.
func New(
	store repository.AssignmentStore,
	directory repository.BrokerDirectory,
	leads repository.LeadReader,
	params repository.ParameterReader,
	properties repository.PropertyWriter,
	bus events.Bus,
	log *logger.Logger,
	batchSize int,
) *Service {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Service{
		store:      store,
		directory:  directory,
		leads:      leads,
		params:     params,
		properties: properties,
		bus:        bus,
		log:        log,
		batchSize:  batchSize,
	}
}

// Sweep runs one guarded SLA tick: expire past-deadline assignments and
// re-route each affected lead. Concurrent calls within the process are
// rejected; concurrent instances are safe because the claim query skips
// rows locked elsewhere.
func (s *Service) Sweep(ctx context.Context) (Summary, error) {
	if !s.running.CompareAndSwap(false, true) {
		s.log.WithContext(ctx).Warn("sweep skipped, previous run still active")
		return Summary{}, ErrSweepInProgress
	}
	defer s.running.Store(false)

	log := s.log.WithContext(ctx)
	var sum Summary

	cfg, err := s.params.RoutingConfig(ctx)
	if err != nil {
		log.DatabaseError("load routing parameters", err)
		return sum, apperr.Wrap(apperr.KindUnavailable, "loading routing parameters", err)
	}
	guardian := domain.NewGuardian(cfg)

	normalized, err := s.store.NormalizeFixedBrokerDeadlines(ctx)
	if err != nil {
		log.DatabaseError("normalize fixed-broker deadlines", err)
		return sum, apperr.Wrap(apperr.KindUnavailable, "normalizing fixed-broker deadlines", err)
	}
	if normalized > 0 {
		log.Warn("cleared deadlines on fixed-broker assignments", "count", normalized)
	}

	expired, err := s.store.ClaimExpired(ctx, s.batchSize)
	if err != nil {
		log.DatabaseError("claim expired assignments", err)
		return sum, apperr.Wrap(apperr.KindUnavailable, "claiming expired assignments", err)
	}
	sum.Expired = len(expired)

	for _, exp := range expired {
		if err := s.publish(ctx, events.AssignmentExpired{
			BaseEvent:        events.NewBaseEvent(),
			AssignmentID:     exp.AssignmentID,
			LeadID:           exp.LeadID,
			PreviousBrokerID: exp.BrokerID,
		}); err != nil {
			sum.NotificationFailures++
		}

		prev := exp.BrokerID
		res, err := s.routeLead(ctx, guardian, exp.LeadID, &prev, &sum.NotificationFailures)
		if err != nil {
			sum.Failures++
			log.Error("re-routing lead failed",
				"lead_id", exp.LeadID,
				"assignment_id", exp.AssignmentID,
				"error", err.Error(),
			)
			continue
		}
		switch {
		case res.Exhausted:
			sum.Exhausted++
		case res.AutoAccepted:
			sum.AutoAccepted++
			sum.Rerouted++
		default:
			sum.Rerouted++
		}
	}

	log.SweepResult(sum.Expired, sum.Rerouted, sum.Exhausted, sum.Failures)
	return sum, nil
}

// Running reports whether a sweep is currently executing in this process.
func (s *Service) Running() bool {
	return s.running.Load()
}

// Parameters returns the current routing configuration snapshot.
func (s *Service) Parameters(ctx context.Context) (domain.RoutingConfig, error) {
	return s.params.RoutingConfig(ctx)
}

// RouteNewLead performs intake routing for a fresh lead. Leads pinned to a
// property owner get an auto-accepted fixed-broker assignment when the
// exemption policy allows; everything else starts the external cascade.
func (s *Service) RouteNewLead(ctx context.Context, leadID int64) (RouteResult, error) {
	cfg, err := s.params.RoutingConfig(ctx)
	if err != nil {
		return RouteResult{}, apperr.Wrap(apperr.KindUnavailable, "loading routing parameters", err)
	}
	guardian := domain.NewGuardian(cfg)

	lead, err := s.leads.LeadContext(ctx, leadID)
	if err != nil {
		return RouteResult{}, err
	}

	if lead.FixedBrokerID != nil {
		if guardian.SkipInitialRouting(true) {
			return s.assignFixedBroker(ctx, guardian, lead)
		}
		s.log.WithContext(ctx).Info("fixed-broker exemption disabled, lead enters cascade",
			"lead_id", leadID,
		)
	}

	var notifFailures int
	res, err := s.routeLead(ctx, guardian, leadID, nil, &notifFailures)
	if err != nil {
		return RouteResult{}, err
	}
	return res, nil
}

// assignFixedBroker creates the auto-accepted owner assignment. An inactive
// owner broker sends the lead into the regular cascade instead.
func (s *Service) assignFixedBroker(ctx context.Context, guardian *domain.Guardian, lead *repository.LeadContext) (RouteResult, error) {
	brokerID := *lead.FixedBrokerID
	broker, err := s.directory.BrokerByID(ctx, brokerID)
	if err != nil {
		return RouteResult{}, err
	}
	if !broker.Active {
		s.log.WithContext(ctx).Warn("owner broker inactive, lead enters cascade",
			"lead_id", lead.LeadID,
			"broker_id", brokerID.String(),
		)
		var notifFailures int
		return s.routeLead(ctx, guardian, lead.LeadID, nil, &notifFailures)
	}

	id, err := s.store.Create(ctx, repository.CreateAssignmentParams{
		LeadID:   lead.LeadID,
		BrokerID: brokerID,
		Status:   domain.StatusAccepted,
		Reason:   domain.FixedBrokerReason("intake"),
	})
	if err != nil {
		return RouteResult{}, err
	}

	s.bus.Publish(ctx, events.LeadRouted{
		BaseEvent:    events.NewBaseEvent(),
		LeadID:       lead.LeadID,
		AssignmentID: id,
		BrokerID:     brokerID,
		Tier:         "",
		AutoAccepted: true,
	})

	return RouteResult{
		LeadID:       lead.LeadID,
		AssignmentID: id,
		BrokerID:     &brokerID,
		Status:       string(domain.StatusAccepted),
		AutoAccepted: true,
		Detail:       "assigned to property owner broker",
	}, nil
}

// AssignLead pins a lead to a broker chosen by an operator. The assignment
// auto-accepts with a manual reason; an operator decision does not wait on
// the broker.
func (s *Service) AssignLead(ctx context.Context, leadID int64, brokerID uuid.UUID) (RouteResult, error) {
	lead, err := s.leads.LeadContext(ctx, leadID)
	if err != nil {
		return RouteResult{}, err
	}

	broker, err := s.directory.BrokerByID(ctx, brokerID)
	if err != nil {
		return RouteResult{}, err
	}
	if !broker.Active {
		return RouteResult{}, apperr.Validation("broker is not active")
	}

	id, err := s.store.Create(ctx, repository.CreateAssignmentParams{
		LeadID:   lead.LeadID,
		BrokerID: broker.ID,
		Status:   domain.StatusAccepted,
		Reason:   domain.ManualReason("operator"),
	})
	if err != nil {
		return RouteResult{}, err
	}

	s.bus.Publish(ctx, events.LeadRouted{
		BaseEvent:    events.NewBaseEvent(),
		LeadID:       lead.LeadID,
		AssignmentID: id,
		BrokerID:     broker.ID,
		AutoAccepted: true,
	})

	return RouteResult{
		LeadID:       lead.LeadID,
		AssignmentID: id,
		BrokerID:     &broker.ID,
		Status:       string(domain.StatusAccepted),
		AutoAccepted: true,
		Detail:       "assigned by operator",
	}, nil
}

// AcceptAssignment records the broker taking an offer before its deadline.
// The conditional update loses the race against a concurrent sweep expiry,
// so a late accept surfaces as a conflict instead of resurrecting the row.
func (s *Service) AcceptAssignment(ctx context.Context, id int64) error {
	a, err := s.store.GetAssignment(ctx, id)
	if err != nil {
		return err
	}
	if a.Status == domain.StatusAccepted {
		return nil
	}

	ok, err := s.store.Transition(ctx, id, domain.StatusAssigned, domain.StatusAccepted)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Conflict("assignment is no longer active")
	}

	s.bus.Publish(ctx, events.AssignmentAccepted{
		BaseEvent:    events.NewBaseEvent(),
		AssignmentID: a.ID,
		LeadID:       a.LeadID,
		BrokerID:     a.BrokerID,
	})
	return nil
}

// RejectAssignment records the broker declining an offer and immediately
// re-routes the lead through the remaining cascade.
func (s *Service) RejectAssignment(ctx context.Context, id int64) (RouteResult, error) {
	a, err := s.store.GetAssignment(ctx, id)
	if err != nil {
		return RouteResult{}, err
	}

	ok, err := s.store.Transition(ctx, id, domain.StatusAssigned, domain.StatusRejected)
	if err != nil {
		return RouteResult{}, err
	}
	if !ok {
		return RouteResult{}, apperr.Conflict("assignment is no longer active")
	}

	cfg, err := s.params.RoutingConfig(ctx)
	if err != nil {
		return RouteResult{}, apperr.Wrap(apperr.KindUnavailable, "loading routing parameters", err)
	}

	prev := a.BrokerID
	var notifFailures int
	return s.routeLead(ctx, domain.NewGuardian(cfg), a.LeadID, &prev, &notifFailures)
}

// routeLead runs one cascade pass for a lead: decide the tier from history,
// fall through empty tiers, create the assignment and publish the outcome.
// previousBrokerID is set when the pass follows an expiry.
func (s *Service) routeLead(ctx context.Context, guardian *domain.Guardian, leadID int64, previousBrokerID *uuid.UUID, notifFailures *int) (RouteResult, error) {
	lead, err := s.leads.LeadContext(ctx, leadID)
	if err != nil {
		return RouteResult{}, err
	}

	history, err := s.store.History(ctx, leadID)
	if err != nil {
		return RouteResult{}, err
	}

	decision := guardian.NextTier(history)
	if decision.Exhausted {
		return s.exhaust(ctx, leadID, len(history), notifFailures)
	}

	excluded := guardian.ExcludedBrokers(history)
	attempt := decision.ExternalAttempts + decision.InternalAttempts + 1

	for _, tier := range guardian.CascadeFrom(decision.Tier) {
		broker, err := s.pickBroker(ctx, tier, lead.Area(), excluded)
		if err != nil {
			return RouteResult{}, err
		}
		if broker == nil {
			continue
		}

		now := time.Now()
		status := guardian.StatusFor(tier, false)
		params := repository.CreateAssignmentParams{
			LeadID:    leadID,
			BrokerID:  broker.ID,
			Status:    status,
			Reason:    guardian.ReasonFor(tier, routeSource(previousBrokerID), previousBrokerID, attempt),
			ExpiresAt: guardian.Deadline(tier, now),
		}

		id, err := s.store.Create(ctx, params)
		if err != nil {
			return RouteResult{}, err
		}

		autoAccepted := status == domain.StatusAccepted
		if autoAccepted && tier == domain.TierOnCall {
			if err := s.properties.SetPropertyBroker(ctx, lead.PropertyID, broker.ID); err != nil {
				s.log.WithContext(ctx).DatabaseError("set property broker", err)
			}
		}

		if err := s.publish(ctx, events.LeadRouted{
			BaseEvent:        events.NewBaseEvent(),
			LeadID:           leadID,
			AssignmentID:     id,
			BrokerID:         broker.ID,
			Tier:             string(tier),
			AutoAccepted:     autoAccepted,
			ExpiresAt:        params.ExpiresAt,
			PreviousBrokerID: previousBrokerID,
		}); err != nil {
			*notifFailures++
		}

		brokerID := broker.ID
		return RouteResult{
			LeadID:       leadID,
			AssignmentID: id,
			BrokerID:     &brokerID,
			Tier:         string(tier),
			Status:       string(status),
			AutoAccepted: autoAccepted,
			Detail:       decision.Detail,
		}, nil
	}

	return s.exhaust(ctx, leadID, len(history), notifFailures)
}

// pickBroker selects the next broker for a tier, or nil when the tier has
// no eligible broker and the cascade should fall through.
func (s *Service) pickBroker(ctx context.Context, tier domain.Tier, area *domain.Area, excluded []uuid.UUID) (*domain.Broker, error) {
	if tier == domain.TierOnCall {
		return s.directory.OnCallBroker(ctx, area)
	}

	brokers, err := s.directory.EligibleBrokers(ctx, repository.BrokerFilter{
		Tier:       tier,
		OnCall:     false,
		Area:       area,
		ExcludeIDs: excluded,
		Limit:      1,
	})
	if err != nil {
		return nil, fmt.Errorf("querying %s brokers: %w", tier, err)
	}
	if len(brokers) == 0 {
		return nil, nil
	}
	return &brokers[0], nil
}

// exhaust records the no-broker-left outcome for a lead.
func (s *Service) exhaust(ctx context.Context, leadID int64, attempts int, notifFailures *int) (RouteResult, error) {
	s.log.WithContext(ctx).Warn("lead exhausted all routing tiers",
		"lead_id", leadID,
		"attempts", attempts,
	)
	if err := s.publish(ctx, events.LeadExhausted{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    leadID,
		Attempts:  attempts,
	}); err != nil {
		*notifFailures++
	}
	return RouteResult{LeadID: leadID, Exhausted: true, Detail: "no eligible broker at any tier"}, nil
}

// publish delivers an event synchronously so handler failures can be
// counted. Handler errors never affect assignment state.
func (s *Service) publish(ctx context.Context, ev events.Event) error {
	if err := s.bus.PublishSync(ctx, ev); err != nil {
		s.log.WithContext(ctx).Warn("notification handler failed",
			"event", ev.EventName(),
			"error", err.Error(),
		)
		return err
	}
	return nil
}

func routeSource(previousBrokerID *uuid.UUID) string {
	if previousBrokerID != nil {
		return "sla_sweep"
	}
	return "intake"
}
