// internal/service/inventory/infrastructure/zk_locker.go
package infrastructure

import (
	"context"
	"time"

	"orderflow/internal/pkg/zookeeper"
)

const lockTimeout = 10 * time.Second

// ZkLocker 在多实例部署下用 ZooKeeper 串行化商品级操作。
// 多个消费组成员可能同时收到涉及相同商品的不同订单。
type ZkLocker struct {
	conn *zookeeper.Conn
}

func NewZkLocker(conn *zookeeper.Conn) *ZkLocker {
	return &ZkLocker{conn: conn}
}

func (l *ZkLocker) LockKeys(ctx context.Context, keys []string) (func(), error) {
	timeout := lockTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	return zookeeper.AcquireAll(l.conn, keys, timeout)
}
