package service

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"

	"github.com/omniagentpay/payguard/internal/domain"
)

// recordEvent records an event to the store.
func (s *Service) recordEvent(ctx context.Context, intentID string, eventType domain.EventType, payload interface{}) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "failed to marshal payload")
	}

	event := &domain.Event{
		EventID:  domain.NewEventID(),
		IntentID: intentID,
		Ts:       s.clock().UnixMilli(),
		Type:     eventType,
		Payload:  payloadBytes,
	}

	if err := s.store.CreateEvent(ctx, event); err != nil {
		return err
	}
	if s.events != nil {
		s.events.Publish(*event)
	}
	return nil
}

// emit records an event and only logs on failure; the timeline never decides
// an intent's state.
func (s *Service) emit(ctx context.Context, in *domain.PaymentIntent, eventType domain.EventType, payload interface{}) {
	if err := s.recordEvent(ctx, in.ID, eventType, payload); err != nil {
		s.logger.WarnContext(ctx, "failed to record event",
			"intent_id", in.ID, "type", eventType, "error", err.Error())
	}
}

type statusPayload struct {
	Status  domain.IntentStatus `json:"status"`
	Details string              `json:"details,omitempty"`
}

func stepDetails(in *domain.PaymentIntent, name domain.StepName) string {
	if step := in.Step(name); step != nil {
		return step.Details
	}
	return ""
}
