// internal/service/push/client.go
package push

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"orderflow/internal/errs"
	"orderflow/internal/pkg/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// 网关前面有接入层做来源控制
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client 是一条 WebSocket 连接。
type Client struct {
	customerID string
	conn       *websocket.Conn
	send       chan []byte
}

// ServeWS 处理 /ws?customerId=xxx 的升级请求。
func ServeWS(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		customerID := r.URL.Query().Get("customerId")
		if customerID == "" {
			http.Error(w, errs.Validation("customerId is required").Error(), http.StatusBadRequest)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Ctx(r.Context()).Error().Err(err).Msg("websocket upgrade failed")
			return
		}

		client := &Client{customerID: customerID, conn: conn, send: make(chan []byte, sendBuffer)}
		hub.register(client)
		logger.Ctx(r.Context()).Info().Str("customer_id", customerID).Msg("websocket client connected")

		go client.writeLoop(hub)
		go client.readLoop(hub)
	}
}

// readLoop 只消费控制帧，客户端不上行业务数据。
func (c *Client) readLoop(hub *Hub) {
	defer func() {
		hub.unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Ctx(context.Background()).Warn().
					Str("customer_id", c.customerID).
					Err(err).
					Msg("websocket closed unexpectedly")
			}
			return
		}
	}
}

func (c *Client) writeLoop(hub *Hub) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
