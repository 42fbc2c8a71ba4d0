// internal/service/groupbuy/port/notification.go
package port

import (
	"context"

	"tuanbuy/internal/service/groupbuy/domain"
)

// Notifier 是通知分发器的出站端口。
// Enqueue 不阻塞业务流程：实现方内部限定超时，失败只记日志。
// 调用方必须在事务提交之后再入队，保证事件反映的是已提交状态。
type Notifier interface {
	Enqueue(ctx context.Context, event domain.NotificationEvent)
}
