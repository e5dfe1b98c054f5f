package sender

import (
	"context"
	"strconv"

	"gitee.com/flycash/broadcast-platform/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ObservabilitySender 为投递添加链路追踪的装饰器
type ObservabilitySender struct {
	sender Sender
	tracer trace.Tracer
}

// NewObservabilitySender 创建一个新的带有链路追踪的投递工作者
func NewObservabilitySender(sender Sender) *ObservabilitySender {
	return &ObservabilitySender{
		sender: sender,
		tracer: otel.Tracer("broadcast-platform/sender"),
	}
}

func (o *ObservabilitySender) Deliver(ctx context.Context, msg domain.DispatchMessage) (domain.DeliveryResult, error) {
	ctx, span := o.tracer.Start(ctx, "Sender.Deliver",
		trace.WithAttributes(
			attribute.String("notification.id", strconv.FormatUint(msg.NotificationID, 10)),
			attribute.String("notification.batchKey", msg.BatchKey),
			attribute.String("recipient.id", msg.RecipientID),
			attribute.String("recipient.type", string(msg.RecipientType)),
			attribute.Int("dispatch.redelivery", int(msg.Redelivery)),
		))
	defer span.End()

	result, err := o.sender.Deliver(ctx, msg)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(
			attribute.String("delivery.status", string(result.Status)),
			attribute.Int("delivery.attempts", len(result.StatusHistory)),
			attribute.Int("delivery.throttles", int(result.NumberOfThrottles)),
		)
	}

	return result, err
}
