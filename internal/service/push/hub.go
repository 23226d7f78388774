// internal/service/push/hub.go
package push

import (
	"context"
	"sync"

	"orderflow/internal/pkg/logger"
)

// Hub 维护在线客户到 WebSocket 连接的映射。
// 一个客户可以有多个连接（多端登录），推送时全部下发。
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[string]map[*Client]struct{})}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.clients[c.customerID]
	if !ok {
		conns = make(map[*Client]struct{})
		h.clients[c.customerID] = conns
	}
	conns[c] = struct{}{}
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.clients[c.customerID]
	if !ok {
		return
	}
	if _, present := conns[c]; !present {
		return
	}
	delete(conns, c)
	close(c.send)
	if len(conns) == 0 {
		delete(h.clients, c.customerID)
	}
}

// Push 把消息投到客户的所有在线连接。客户不在线时静默丢弃，
// 通知本体已在通知服务持久化，推送只是实时性加成。
func (h *Hub) Push(ctx context.Context, customerID string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns := h.clients[customerID]
	if len(conns) == 0 {
		return
	}
	for c := range conns {
		select {
		case c.send <- payload:
		default:
			// 发送缓冲满说明连接已经死了，交给写协程收尾
			logger.Ctx(ctx).Warn().
				Str("customer_id", customerID).
				Msg("push buffer full, dropping message for slow connection")
		}
	}
}

// Online 返回当前在线客户数，暴露在管理接口上。
func (h *Hub) Online() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
