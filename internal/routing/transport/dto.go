// Package transport defines request and response DTOs for the routing API.
package transport

// SweepRequest carries optional overrides for a manual sweep trigger.
type SweepRequest struct {
	// TriggeredBy identifies the operator or system requesting the sweep.
	TriggeredBy string `json:"triggeredBy" binding:"-" validate:"omitempty,max=120"`
}

// AssignRequest pins a lead to a broker chosen by an operator.
type AssignRequest struct {
	BrokerID string `json:"brokerId" validate:"required,uuid"`
}

// AsyncSweepResponse acknowledges an enqueued sweep task.
type AsyncSweepResponse struct {
	TaskID string `json:"taskId"`
	Queue  string `json:"queue"`
}

// ParametersResponse is the routing configuration snapshot exposed on the API.
type ParametersResponse struct {
	ExternalSLAMinutes       int  `json:"externalSlaMinutes"`
	InternalSLAMinutes       int  `json:"internalSlaMinutes"`
	ExternalFanOut           int  `json:"externalFanout"`
	InternalFanOut           int  `json:"internalFanout"`
	OnCallEscalationEnabled  bool `json:"oncallEscalationEnabled"`
	FixedBrokerRoutingExempt bool `json:"fixedBrokerRoutingExempt"`
}
