// internal/zookeeper/conn.go
package zookeeper

import (
	"strings"
	"time"

	"github.com/go-zookeeper/zk"
)

// Conn 是对 zk.Conn 的薄封装，统一连接参数。
type Conn struct {
	*zk.Conn
}

// Connect 建立到 ZooKeeper 集群的连接。
// servers 为逗号分隔的 "host:port" 列表。
func Connect(servers string) (*Conn, error) {
	conn, _, err := zk.Connect(strings.Split(servers, ","), 10*time.Second,
		zk.WithLogInfo(false))
	if err != nil {
		return nil, err
	}
	return &Conn{Conn: conn}, nil
}

// EnsurePath 逐级创建持久节点，节点已存在时不报错。
func (c *Conn) EnsurePath(path string) error {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	cur := ""
	for _, p := range parts {
		cur += "/" + p
		_, err := c.Create(cur, []byte(""), 0, zk.WorldACL(zk.PermAll))
		if err != nil && err != zk.ErrNodeExists {
			return err
		}
	}
	return nil
}
