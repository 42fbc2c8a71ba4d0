// internal/service/order/infrastructure/adapter/refund_kafka_adapter.go
package adapter

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"tuanbuy/internal/pkg/mq"
	"tuanbuy/internal/service/order/port"
)

const refundEnqueueTimeout = 3 * time.Second

// refundRequest 是发给支付网关退款队列的消息体。
type refundRequest struct {
	PaymentNo string    `json:"payment_no"`
	Amount    int64     `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}

// RefundKafkaAdapter 实现了 port.RefundGateway 接口。
// 退款以消息的形式排给支付网关消费，paymentNo 做 key，
// 网关侧按 paymentNo 幂等去重。
type RefundKafkaAdapter struct {
	writer *kafka.Writer
}

var _ port.RefundGateway = (*RefundKafkaAdapter)(nil)

func NewRefundKafkaAdapter(writer *kafka.Writer) *RefundKafkaAdapter {
	return &RefundKafkaAdapter{writer: writer}
}

func (a *RefundKafkaAdapter) EnqueueRefund(ctx context.Context, paymentNo string, amount int64) error {
	payload, err := json.Marshal(refundRequest{
		PaymentNo: paymentNo,
		Amount:    amount,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return errors.Wrap(err, "marshal refund request")
	}

	writeCtx, cancel := context.WithTimeout(ctx, refundEnqueueTimeout)
	defer cancel()

	if err := mq.ProduceMessage(writeCtx, a.writer, []byte(paymentNo), payload); err != nil {
		return errors.Wrapf(err, "enqueue refund %s", paymentNo)
	}
	return nil
}

func (a *RefundKafkaAdapter) Close() error {
	return a.writer.Close()
}
