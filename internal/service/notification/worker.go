// internal/service/notification/worker.go
package notification

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"tuanbuy/internal/pkg/logger"
	"tuanbuy/internal/pkg/mq"
	"tuanbuy/internal/service/groupbuy/domain"
)

// pushMessage 是发给推送网关主题的消息体，按接收者分发。
type pushMessage struct {
	UserID  int64  `json:"user_id"`
	Type    string `json:"type"`
	Message string `json:"message"`
	DealID  int64  `json:"deal_id,omitempty"`
	OrderID int64  `json:"order_id,omitempty"`
}

// Worker 消费通知主题，把事件转成推送消息写给推送网关。
// 至少一次投递：只有处理成功才提交位点，推送侧按内容去重。
type Worker struct {
	reader *kafka.Reader
	push   *kafka.Writer
	tracer trace.Tracer
}

func NewWorker(reader *kafka.Reader, push *kafka.Writer) *Worker {
	return &Worker{
		reader: reader,
		push:   push,
		tracer: otel.Tracer("notification-worker"),
	}
}

// Run 阻塞消费直到 ctx 取消。
func (w *Worker) Run(ctx context.Context) error {
	logger.Ctx(ctx).Info().Msg("notification worker started")
	for {
		msg, err := w.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				logger.Ctx(ctx).Info().Msg("notification worker stopped")
				return ctx.Err()
			}
			logger.Ctx(ctx).Error().Err(err).Msg("fetch notification message")
			time.Sleep(time.Second)
			continue
		}

		if err := w.handle(ctx, msg); err != nil {
			// 不提交位点，消息会被重投
			logger.Ctx(ctx).Error().Err(err).
				Str("key", string(msg.Key)).
				Msg("handle notification message")
			continue
		}
		if err := w.reader.CommitMessages(ctx, msg); err != nil {
			logger.Ctx(ctx).Error().Err(err).Msg("commit notification offset")
		}
	}
}

func (w *Worker) handle(ctx context.Context, msg kafka.Message) error {
	msgCtx := mq.ExtractTraceContext(ctx, msg.Headers)
	msgCtx, span := w.tracer.Start(msgCtx, "notification.Dispatch")
	defer span.End()

	var event domain.NotificationEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		// 毒消息没有重试的意义，记日志后吞掉
		logger.Ctx(msgCtx).Error().Err(err).Str("key", string(msg.Key)).
			Msg("drop malformed notification event")
		return nil
	}
	span.SetAttributes(
		attribute.String("event.type", string(event.Type)),
		attribute.Int64("event.deal_id", event.DealID),
	)

	recipient := event.UserID
	if recipient == 0 {
		recipient = event.MerchantID
	}
	if recipient == 0 {
		logger.Ctx(msgCtx).Warn().Str("event_type", string(event.Type)).
			Msg("notification event without recipient")
		return nil
	}

	payload, err := json.Marshal(pushMessage{
		UserID:  recipient,
		Type:    string(event.Type),
		Message: event.Message,
		DealID:  event.DealID,
		OrderID: event.OrderID,
	})
	if err != nil {
		return err
	}

	logger.Ctx(msgCtx).Info().
		Str("event_type", string(event.Type)).
		Int64("recipient", recipient).
		Msg("dispatching notification")
	return mq.ProduceMessage(msgCtx, w.push, msg.Key, payload)
}

func (w *Worker) Close() error {
	if err := w.reader.Close(); err != nil {
		return err
	}
	return w.push.Close()
}
