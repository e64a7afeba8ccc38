package events

import (
	"encoding/json"
	"time"
)

// EventData is the interface that all event data types must implement
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// Keyed is implemented by event data that should be partitioned by a stable key
// (the investor id) when forwarded to a sink.
type Keyed interface {
	PartitionKey() string
}

// WithdrawalData is shared by the three withdrawal lifecycle events.
// Amounts are decimal strings.
type WithdrawalData struct {
	Type            EventType `json:"-"`
	RequestID       string    `json:"request_id"`
	InvestorID      string    `json:"investor_id"`
	ProductID       string    `json:"product_id"`
	RequestedAmount string    `json:"requested_amount"`
	FeeAmount       string    `json:"fee_amount"`
	NetAmount       string    `json:"net_amount"`
	ApproverID      string    `json:"approver_id,omitempty"`
	Reason          string    `json:"reason,omitempty"`
}

// EventType returns the lifecycle event this data belongs to
func (d *WithdrawalData) EventType() EventType {
	return d.Type
}

// PartitionKey keys withdrawal events by investor
func (d *WithdrawalData) PartitionKey() string {
	return d.InvestorID
}

// AccrualCompletedData summarises one accrual cycle
type AccrualCompletedData struct {
	RunID      string `json:"run_id"`
	Trigger    string `json:"trigger"`
	Manual     bool   `json:"manual"`
	Processed  int    `json:"processed"`
	Updated    int    `json:"updated"`
	Skipped    int    `json:"skipped"`
	ErrorCount int    `json:"error_count"`
}

// EventType returns the event type for AccrualCompletedData
func (d *AccrualCompletedData) EventType() EventType {
	return AccrualCompleted
}

// ConsolidationCompletedData summarises one purchase import
type ConsolidationCompletedData struct {
	BatchID   string `json:"batch_id"`
	Investors int    `json:"investors"`
	Failed    int    `json:"failed"`
	Invalid   int    `json:"invalid"`
}

// EventType returns the event type for ConsolidationCompletedData
func (d *ConsolidationCompletedData) EventType() EventType {
	return ConsolidationCompleted
}

// PositionFlagChangedData records a contract or approval flag flip
type PositionFlagChangedData struct {
	InvestorID string `json:"investor_id"`
	ProductID  string `json:"product_id"`
	Flag       string `json:"flag"`
	Value      bool   `json:"value"`
}

// EventType returns the event type for PositionFlagChangedData
func (d *PositionFlagChangedData) EventType() EventType {
	return PositionFlagChanged
}

// PartitionKey keys flag events by investor
func (d *PositionFlagChangedData) PartitionKey() string {
	return d.InvestorID
}

// EventWithData represents an event with typed data
type EventWithData struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Module    string    `json:"module"`
	Data      EventData `json:"data"`
}

// MarshalJSON customizes JSON serialization for EventWithData
func (e *EventWithData) MarshalJSON() ([]byte, error) {
	type Alias EventWithData
	aux := &struct {
		Data json.RawMessage `json:"data"`
		*Alias
	}{
		Alias: (*Alias)(e),
	}

	if e.Data != nil {
		dataBytes, err := json.Marshal(e.Data)
		if err != nil {
			return nil, err
		}
		aux.Data = dataBytes
	}

	return json.Marshal(aux)
}

// UnmarshalJSON customizes JSON deserialization for EventWithData
func (e *EventWithData) UnmarshalJSON(data []byte) error {
	type Alias EventWithData
	aux := &struct {
		Data json.RawMessage `json:"data"`
		*Alias
	}{
		Alias: (*Alias)(e),
	}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	if len(aux.Data) == 0 || string(aux.Data) == "null" {
		e.Data = nil
		return nil
	}

	var eventData EventData
	switch aux.Type {
	case WithdrawalRequested, WithdrawalApproved, WithdrawalRejected:
		eventData = &WithdrawalData{Type: aux.Type}
	case AccrualCompleted:
		eventData = &AccrualCompletedData{}
	case ConsolidationCompleted:
		eventData = &ConsolidationCompletedData{}
	case PositionFlagChanged:
		eventData = &PositionFlagChangedData{}
	default:
		eventData = &GenericEventData{Type: aux.Type}
	}

	if err := json.Unmarshal(aux.Data, eventData); err != nil {
		return err
	}
	e.Data = eventData
	return nil
}

// GenericEventData is a fallback for events that don't have a specific type
type GenericEventData struct {
	Type EventType              `json:"-"`
	Data map[string]interface{} `json:"-"`
}

// EventType returns the event type for GenericEventData
func (d *GenericEventData) EventType() EventType {
	return d.Type
}

// MarshalJSON customizes JSON serialization for GenericEventData
func (d *GenericEventData) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Data)
}

// UnmarshalJSON customizes JSON deserialization for GenericEventData
func (d *GenericEventData) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &d.Data)
}
