// internal/service/groupbuy/infrastructure/adapter/notification_kafka_adapter.go
package adapter

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"tuanbuy/internal/pkg/logger"
	"tuanbuy/internal/pkg/metrics"
	"tuanbuy/internal/pkg/mq"
	"tuanbuy/internal/service/groupbuy/domain"
	"tuanbuy/internal/service/groupbuy/port"
)

const enqueueTimeout = 3 * time.Second

// NotificationKafkaAdapter 实现了 port.Notifier 接口。
// 通知是尽力而为的：入队失败只记日志和指标，绝不把错误
// 传回业务流程。
type NotificationKafkaAdapter struct {
	writer *kafka.Writer
}

var _ port.Notifier = (*NotificationKafkaAdapter)(nil)

func NewNotificationKafkaAdapter(writer *kafka.Writer) *NotificationKafkaAdapter {
	return &NotificationKafkaAdapter{writer: writer}
}

// Enqueue 把事件写入通知主题。key 用 deal_id，同一活动的事件
// 落在同一分区，消费者看到的顺序和提交顺序一致。
func (a *NotificationKafkaAdapter) Enqueue(ctx context.Context, event domain.NotificationEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("event_type", string(event.Type)).
			Msg("marshal notification event")
		metrics.NotificationEnqueueTotal.WithLabelValues(string(event.Type), "error").Inc()
		return
	}

	writeCtx, cancel := context.WithTimeout(ctx, enqueueTimeout)
	defer cancel()

	key := []byte(strconv.FormatInt(event.DealID, 10))
	if err := mq.ProduceMessage(writeCtx, a.writer, key, payload); err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Str("event_type", string(event.Type)).
			Int64("deal_id", event.DealID).
			Msg("enqueue notification event")
		metrics.NotificationEnqueueTotal.WithLabelValues(string(event.Type), "error").Inc()
		return
	}
	metrics.NotificationEnqueueTotal.WithLabelValues(string(event.Type), "ok").Inc()
}

func (a *NotificationKafkaAdapter) Close() error {
	return a.writer.Close()
}
