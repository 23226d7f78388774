// internal/pkg/zookeeper/lock.go
package zookeeper

import (
	"sort"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/pkg/errors"
)

const lockRoot = "/orderflow/locks"

// Conn 包装了 ZooKeeper 会话。
type Conn struct {
	*zk.Conn
}

// Connect 建立 ZooKeeper 会话并确保锁根节点存在。
func Connect(servers []string, sessionTimeout time.Duration) (*Conn, error) {
	raw, _, err := zk.Connect(servers, sessionTimeout)
	if err != nil {
		return nil, errors.Wrap(err, "zookeeper: connect")
	}
	conn := &Conn{Conn: raw}
	if err := conn.ensurePath(lockRoot); err != nil {
		raw.Close()
		return nil, err
	}
	return conn, nil
}

func (c *Conn) ensurePath(path string) error {
	// 逐级创建，已存在不算错误
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	current := ""
	for _, part := range parts {
		current += "/" + part
		_, err := c.Create(current, []byte{}, 0, zk.WorldACL(zk.PermAll))
		if err != nil && err != zk.ErrNodeExists {
			return errors.Wrapf(err, "zookeeper: create %s", current)
		}
	}
	return nil
}

// Lock 是一把基于临时顺序节点的分布式锁。
type Lock struct {
	conn     *Conn
	path     string // /orderflow/locks/<resourceID>
	lockNode string // 获锁后自己创建的节点
}

// NewLock 为某个资源创建锁实例。
func NewLock(conn *Conn, resourceID string) (*Lock, error) {
	path := lockRoot + "/" + resourceID
	if err := conn.ensurePath(path); err != nil {
		return nil, err
	}
	return &Lock{conn: conn, path: path}, nil
}

// Acquire 阻塞获取锁，超时返回错误。
func (l *Lock) Acquire(timeout time.Duration) error {
	nodePath, err := l.conn.CreateProtectedEphemeralSequential(l.path+"/lock-", []byte{}, zk.WorldACL(zk.PermAll))
	if err != nil {
		return errors.Wrap(err, "zookeeper: create sequential node")
	}
	l.lockNode = nodePath

	deadline := time.Now().Add(timeout)
	for {
		children, _, err := l.conn.Children(l.path)
		if err != nil {
			return errors.Wrap(err, "zookeeper: list children")
		}
		sort.Strings(children)

		myName := strings.TrimPrefix(l.lockNode, l.path+"/")
		if myName == children[0] {
			// 最小节点即持锁者
			return nil
		}

		prevIndex := -1
		for i, child := range children {
			if child == myName {
				prevIndex = i - 1
				break
			}
		}
		if prevIndex < 0 {
			return errors.New("zookeeper: own lock node missing")
		}

		// 只监听前一个节点，避免惊群
		exists, _, eventCh, err := l.conn.ExistsW(l.path + "/" + children[prevIndex])
		if err != nil {
			return errors.Wrap(err, "zookeeper: watch previous node")
		}
		if !exists {
			continue
		}

		select {
		case event := <-eventCh:
			if event.Type == zk.EventNodeDeleted {
				continue
			}
		case <-time.After(time.Until(deadline)):
			l.Release()
			return errors.New("zookeeper: timeout waiting for lock")
		}
	}
}

// Release 释放锁，节点已不存在时视为已释放。
func (l *Lock) Release() error {
	if l.lockNode == "" {
		return nil
	}
	err := l.conn.Delete(l.lockNode, -1)
	l.lockNode = ""
	if err != nil && err != zk.ErrNoNode {
		return errors.Wrap(err, "zookeeper: delete lock node")
	}
	return nil
}

// AcquireAll 按字典序依次获取一组资源的锁，返回反序释放函数。
// 所有持锁方使用同一顺序即可避免死锁。
func AcquireAll(conn *Conn, resourceIDs []string, timeout time.Duration) (func(), error) {
	sorted := append([]string(nil), resourceIDs...)
	sort.Strings(sorted)

	acquired := make([]*Lock, 0, len(sorted))
	release := func() {
		for i := len(acquired) - 1; i >= 0; i-- {
			acquired[i].Release()
		}
	}

	for _, id := range sorted {
		lock, err := NewLock(conn, id)
		if err != nil {
			release()
			return nil, err
		}
		if err := lock.Acquire(timeout); err != nil {
			release()
			return nil, err
		}
		acquired = append(acquired, lock)
	}
	return release, nil
}
