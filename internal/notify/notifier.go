// Package notify bridges committed stage changes to the external notification
// services over the message bus. Delivery itself (email/SMS/chat) happens
// downstream; this side only publishes.
package notify

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"installflow/internal/model"
	"installflow/internal/mq"
	"installflow/internal/service"
	"installflow/pkg/circuitbreaker"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

// AMQPNotifier publishes project.stage_changed events behind a circuit
// breaker, so a dead broker fails fast instead of stalling every transition.
type AMQPNotifier struct {
	producer Publisher
	breaker  *circuitbreaker.CircuitBreaker
	logger   *zap.Logger
}

func NewAMQPNotifier(producer Publisher, logger *zap.Logger) *AMQPNotifier {
	return &AMQPNotifier{
		producer: producer,
		breaker:  circuitbreaker.New(circuitbreaker.DefaultConfig()),
		logger:   logger,
	}
}

func (n *AMQPNotifier) NotifyStageChange(ctx context.Context, p *model.Project, fromStage, toStage int, updatedBy string) service.NotifyResult {
	payload := mq.StageChangedPayload{
		MessageID: uuid.NewString(),
		ProjectID: p.ID,
		OrgID:     p.OrgID,
		FromStage: fromStage,
		ToStage:   toStage,
		UpdatedBy: updatedBy,
		ChangedAt: p.UpdatedAt,
	}

	err := n.breaker.Execute(func() error {
		return n.producer.Publish(ctx, mq.RoutingStageChanged, payload)
	})
	if err != nil {
		return service.NotifyResult{Sent: false, Err: err}
	}

	return service.NotifyResult{Sent: true, MessageID: payload.MessageID}
}
