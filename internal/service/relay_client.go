package service

import (
	"codehub_backend/pkg/logger"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func (c *RelayClient) readPump() {
	defer func() {
		c.Hub.Leave(c)
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(c.Hub.cfg.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error { c.Conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Log.Warn("WebSocket unexpected close", zap.Error(err), zap.Uint("userId", c.UserID))
			}
			break
		}

		// 超出速率的消息直接丢弃
		if !c.Limiter.Allow() {
			continue
		}
		c.Hub.HandleInbound(c, message)
	}
}

// writePump 每条事件单独一帧，客户端按帧解析 JSON
func (c *RelayClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *RelayHub) serve(c *RelayClient, join func() error) {
	// 先启动写协程，加入通道时的广播和关闭帧才能发出
	go c.writePump()
	if err := join(); err != nil {
		logger.Log.Warn("Relay join rejected", zap.Uint("userId", c.UserID), zap.Error(err))
		h.Leave(c)
		return
	}
	go c.readPump()
}

// ServeProjectWS 调用方需已完成认证和项目访问校验
func ServeProjectWS(hub *RelayHub, w http.ResponseWriter, r *http.Request, userID uint, username string, projectID uint) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Error("WebSocket upgrade failed", zap.Error(err), zap.Uint("userId", userID))
		return
	}
	client := hub.NewClient(userID, username, conn)
	hub.serve(client, func() error { return hub.JoinProjectChannel(client, projectID) })
}

// ServeNotificationWS 未认证的连接收到策略违规关闭帧后断开
func ServeNotificationWS(hub *RelayHub, w http.ResponseWriter, r *http.Request, userID uint, username string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Error("WebSocket upgrade failed", zap.Error(err), zap.Uint("userId", userID))
		return
	}
	if userID == 0 {
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication required")
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		conn.Close()
		return
	}
	client := hub.NewClient(userID, username, conn)
	hub.serve(client, func() error { return hub.JoinNotificationChannel(client, userID) })
}
