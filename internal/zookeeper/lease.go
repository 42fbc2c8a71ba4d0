// internal/zookeeper/lease.go
package zookeeper

import (
	"fmt"

	"github.com/go-zookeeper/zk"
)

const leaseRoot = "/tuanbuy/leases"

// Lease 是一个进程级的粗粒度租约，基于 ZooKeeper 临时节点实现。
// 同一 name 的租约在整个集群里最多只有一个持有者；持有进程崩溃后
// 会话过期，节点自动删除，其他实例即可接管。
//
// 扫描任务用它保证任何时刻只有一个实例在跑，扫描本身是幂等的，
// 所以租约交接期间的短暂重叠或空窗都无害。
type Lease struct {
	conn *Conn
	path string
	held bool
}

// NewLease 创建一个名为 name 的租约对象，不会立即尝试持有。
func NewLease(conn *Conn, name string) (*Lease, error) {
	if err := conn.EnsurePath(leaseRoot); err != nil {
		return nil, fmt.Errorf("failed to ensure lease root: %w", err)
	}
	return &Lease{
		conn: conn,
		path: leaseRoot + "/" + name,
	}, nil
}

// TryAcquire 非阻塞地尝试持有租约。
// 返回 true 表示本进程现在是持有者；false 表示其他实例持有中。
func (l *Lease) TryAcquire() (bool, error) {
	if l.held {
		// 会话可能已经掉线，验证节点仍然存在
		exists, _, err := l.conn.Exists(l.path)
		if err != nil {
			return false, err
		}
		if exists {
			return true, nil
		}
		l.held = false
	}

	_, err := l.conn.Create(l.path, []byte(""), zk.FlagEphemeral, zk.WorldACL(zk.PermAll))
	if err == zk.ErrNodeExists {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to create lease node: %w", err)
	}
	l.held = true
	return true, nil
}

// Release 主动释放租约。
func (l *Lease) Release() error {
	if !l.held {
		return nil
	}
	err := l.conn.Delete(l.path, -1)
	if err != nil && err != zk.ErrNoNode {
		return fmt.Errorf("failed to delete lease node: %w", err)
	}
	l.held = false
	return nil
}
