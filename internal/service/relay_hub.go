package service

import (
	"codehub_backend/internal/config"
	"codehub_backend/internal/util"
	"codehub_backend/pkg/logger"
	"codehub_backend/pkg/monitoring"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	relayShardCount    = 32
	relayPubSubChannel = "relay_channel"

	projectChannelPrefix      = "project:"
	notificationChannelPrefix = "notifications:"
)

// 事件类型
const (
	EventUserJoined        = "user_joined"
	EventUserLeft          = "user_left"
	EventCodeChange        = "code_change"
	EventCursorPosition    = "cursor_position"
	EventFileOpened        = "file_opened"
	EventFileClosed        = "file_closed"
	EventTaskUpdate        = "task_update"
	EventNotification      = "notification"
	EventNotificationCount = "notification_count"
	EventMarkRead          = "mark_read"
)

var ErrRelayStopped = errors.New("relay hub stopped")

// RelayEvent 通道内传递的消息，字段按事件类型取用
type RelayEvent struct {
	Type           string          `json:"type"`
	UserID         uint            `json:"user_id,omitempty"`
	Username       string          `json:"username,omitempty"`
	FilePath       string          `json:"file_path,omitempty"`
	Changes        json.RawMessage `json:"changes,omitempty"`
	Timestamp      json.RawMessage `json:"timestamp,omitempty"`
	Line           *int            `json:"line,omitempty"`
	Column         *int            `json:"column,omitempty"`
	TaskID         uint            `json:"task_id,omitempty"`
	Action         string          `json:"action,omitempty"`
	Data           json.RawMessage `json:"data,omitempty"`
	Notification   json.RawMessage `json:"notification,omitempty"`
	Count          *int64          `json:"count,omitempty"`
	NotificationID string          `json:"notification_id,omitempty"`
}

// AckHandler 处理客户端的已读回执
type AckHandler func(ctx context.Context, userID uint, notificationID string) error

func ProjectChannel(projectID uint) string {
	return fmt.Sprintf("%s%d", projectChannelPrefix, projectID)
}

func NotificationChannel(userID uint) string {
	return fmt.Sprintf("%s%d", notificationChannelPrefix, userID)
}

// RelayClient 一个 websocket 连接，只加入一个通道
type RelayClient struct {
	ID       string
	UserID   uint
	Username string
	Hub      *RelayHub
	Conn     *websocket.Conn
	Send     chan []byte
	Limiter  *rate.Limiter

	channel   string
	closeOnce sync.Once
}

func (c *RelayClient) Channel() string {
	return c.channel
}

func (c *RelayClient) closeSend() {
	c.closeOnce.Do(func() { close(c.Send) })
}

type relayShard struct {
	mu       sync.RWMutex
	channels map[string]map[*RelayClient]struct{}
}

// relayEnvelope 跨实例转发的消息
type relayEnvelope struct {
	Origin  string          `json:"origin"`
	Channel string          `json:"channel"`
	Exclude string          `json:"exclude,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// RelayHub 项目协作与个人通知的实时通道，消息不落库，尽力投递
type RelayHub struct {
	shards     [relayShardCount]*relayShard
	Redis      *redis.Client
	AckHandler AckHandler

	cfg        config.RelayConfig
	instanceID string

	stopMu  sync.RWMutex
	stopped bool
}

func NewRelayHub(rdb *redis.Client, cfg config.RelayConfig) *RelayHub {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 64 * 1024
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 30
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 50
	}
	h := &RelayHub{
		Redis:      rdb,
		cfg:        cfg,
		instanceID: uuid.NewString(),
	}
	for i := 0; i < relayShardCount; i++ {
		h.shards[i] = &relayShard{channels: make(map[string]map[*RelayClient]struct{})}
	}
	return h
}

// NewClient userID 为 0 表示未认证连接
func (h *RelayHub) NewClient(userID uint, username string, conn *websocket.Conn) *RelayClient {
	return &RelayClient{
		ID:       uuid.NewString(),
		UserID:   userID,
		Username: username,
		Hub:      h,
		Conn:     conn,
		Send:     make(chan []byte, h.cfg.SendBuffer),
		Limiter:  rate.NewLimiter(rate.Limit(h.cfg.RatePerSecond), h.cfg.Burst),
	}
}

func (h *RelayHub) getShard(channel string) *relayShard {
	f := fnv.New32a()
	f.Write([]byte(channel))
	return h.shards[f.Sum32()%relayShardCount]
}

func channelKind(channel string) string {
	if strings.HasPrefix(channel, projectChannelPrefix) {
		return "project"
	}
	return "notification"
}

func (h *RelayHub) register(c *RelayClient, channel string) error {
	h.stopMu.RLock()
	defer h.stopMu.RUnlock()
	if h.stopped {
		return ErrRelayStopped
	}
	if c.channel != "" {
		return util.NewValidationError("channel", "connection already joined %s", c.channel)
	}

	s := h.getShard(channel)
	s.mu.Lock()
	members, ok := s.channels[channel]
	if !ok {
		members = make(map[*RelayClient]struct{})
		s.channels[channel] = members
	}
	members[c] = struct{}{}
	c.channel = channel
	s.mu.Unlock()

	monitoring.RelayConnections.WithLabelValues(channelKind(channel)).Inc()
	return nil
}

// JoinProjectChannel 访问权限由调用方在升级连接前校验
func (h *RelayHub) JoinProjectChannel(c *RelayClient, projectID uint) error {
	if c.UserID == 0 {
		return util.ErrUnauthenticated
	}
	channel := ProjectChannel(projectID)
	if err := h.register(c, channel); err != nil {
		return err
	}
	h.Publish(channel, &RelayEvent{Type: EventUserJoined, UserID: c.UserID, Username: c.Username}, c.ID)
	return nil
}

func (h *RelayHub) JoinNotificationChannel(c *RelayClient, userID uint) error {
	if c.UserID == 0 {
		return util.ErrUnauthenticated
	}
	if c.UserID != userID {
		return util.ErrPermissionDenied
	}
	return h.register(c, NotificationChannel(userID))
}

// Leave 可重复调用
func (h *RelayHub) Leave(c *RelayClient) {
	channel := c.channel
	removed := false
	if channel != "" {
		s := h.getShard(channel)
		s.mu.Lock()
		if members, ok := s.channels[channel]; ok {
			if _, ok := members[c]; ok {
				delete(members, c)
				removed = true
				if len(members) == 0 {
					delete(s.channels, channel)
				}
			}
		}
		s.mu.Unlock()
	}
	c.closeSend()

	if !removed {
		return
	}
	monitoring.RelayConnections.WithLabelValues(channelKind(channel)).Dec()
	if channelKind(channel) == "project" {
		h.Publish(channel, &RelayEvent{Type: EventUserLeft, UserID: c.UserID, Username: c.Username}, c.ID)
	}
}

// Publish 序列化一次后投递；excludeConnID 非空时跳过该连接
func (h *RelayHub) Publish(channel string, ev *RelayEvent, excludeConnID string) {
	payload, err := json.Marshal(ev)
	if err != nil {
		logger.Log.Error("Relay event marshal failed", zap.String("type", ev.Type), zap.Error(err))
		return
	}
	monitoring.RelayMessageCounter.WithLabelValues(ev.Type, "out").Inc()

	if h.Redis != nil {
		env, _ := json.Marshal(relayEnvelope{
			Origin:  h.instanceID,
			Channel: channel,
			Exclude: excludeConnID,
			Payload: payload,
		})
		err := h.Redis.Publish(context.Background(), relayPubSubChannel, env).Err()
		if err == nil {
			return
		}
		logger.Log.Warn("Relay redis publish failed, delivering locally", zap.String("channel", channel), zap.Error(err))
	}
	h.deliverLocal(channel, payload, excludeConnID)
}

func (h *RelayHub) deliverLocal(channel string, payload []byte, excludeConnID string) int {
	s := h.getShard(channel)
	s.mu.RLock()
	defer s.mu.RUnlock()

	delivered := 0
	for c := range s.channels[channel] {
		if excludeConnID != "" && c.ID == excludeConnID {
			continue
		}
		select {
		case c.Send <- payload:
			delivered++
		default:
			monitoring.RelayDroppedCounter.Inc()
			logger.Log.Debug("Relay queue full, event dropped", zap.String("channel", channel), zap.String("connId", c.ID))
		}
	}
	return delivered
}

// HandleInbound 处理客户端上行消息，格式错误或未知类型直接丢弃
func (h *RelayHub) HandleInbound(c *RelayClient, raw []byte) {
	var in RelayEvent
	if err := json.Unmarshal(raw, &in); err != nil || in.Type == "" {
		logger.Log.Debug("Relay inbound dropped", zap.String("connId", c.ID), zap.Error(err))
		return
	}
	if c.channel == "" {
		return
	}
	monitoring.RelayMessageCounter.WithLabelValues(in.Type, "in").Inc()

	if channelKind(c.channel) == "project" {
		h.handleProjectEvent(c, &in)
		return
	}
	// 已读回执交给持久化层处理，不广播
	if in.Type == EventMarkRead {
		h.handleAck(c, in.NotificationID)
	}
}

func (h *RelayHub) handleProjectEvent(c *RelayClient, in *RelayEvent) {
	// 发送者身份只取自认证信息
	out := &RelayEvent{Type: in.Type, UserID: c.UserID, Username: c.Username}
	exclude := c.ID

	switch in.Type {
	case EventCodeChange:
		out.FilePath = in.FilePath
		out.Changes = in.Changes
		out.Timestamp = in.Timestamp
	case EventCursorPosition:
		out.FilePath = in.FilePath
		out.Line = in.Line
		out.Column = in.Column
	case EventFileOpened, EventFileClosed:
		out.FilePath = in.FilePath
	case EventTaskUpdate:
		out.TaskID = in.TaskID
		out.Action = in.Action
		out.Data = in.Data
		exclude = ""
	default:
		return
	}
	h.Publish(c.channel, out, exclude)
}

func (h *RelayHub) handleAck(c *RelayClient, notificationID string) {
	if h.AckHandler == nil || notificationID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.AckHandler(ctx, c.UserID, notificationID); err != nil {
		logger.Log.Warn("Relay ack handler failed",
			zap.Uint("userId", c.UserID),
			zap.String("notificationId", notificationID),
			zap.Error(err),
		)
	}
}

func (h *RelayHub) PushNotification(userID uint, notification interface{}) {
	raw, err := json.Marshal(notification)
	if err != nil {
		logger.Log.Error("Notification marshal failed", zap.Uint("userId", userID), zap.Error(err))
		return
	}
	h.Publish(NotificationChannel(userID), &RelayEvent{Type: EventNotification, Notification: raw}, "")
}

func (h *RelayHub) PushNotificationCount(userID uint, count int64) {
	h.Publish(NotificationChannel(userID), &RelayEvent{Type: EventNotificationCount, Count: &count}, "")
}

// BroadcastTaskUpdate 任务变更发送给项目通道内所有连接
func (h *RelayHub) BroadcastTaskUpdate(projectID, actorID uint, actorName string, taskID uint, action string, data interface{}) {
	raw, err := json.Marshal(data)
	if err != nil {
		logger.Log.Error("Task update marshal failed", zap.Uint("taskId", taskID), zap.Error(err))
		return
	}
	h.Publish(ProjectChannel(projectID), &RelayEvent{
		Type:     EventTaskUpdate,
		UserID:   actorID,
		Username: actorName,
		TaskID:   taskID,
		Action:   action,
		Data:     raw,
	}, "")
}

// Presence 本实例上项目通道的在线用户
func (h *RelayHub) Presence(projectID uint) []uint {
	channel := ProjectChannel(projectID)
	s := h.getShard(channel)
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[uint]bool)
	users := make([]uint, 0, len(s.channels[channel]))
	for c := range s.channels[channel] {
		if !seen[c.UserID] {
			seen[c.UserID] = true
			users = append(users, c.UserID)
		}
	}
	return users
}

// Run 订阅 Redis 跨实例消息，ctx 结束时返回
func (h *RelayHub) Run(ctx context.Context) {
	if h.Redis == nil {
		<-ctx.Done()
		return
	}

	pubsub := h.Redis.Subscribe(ctx, relayPubSubChannel)
	defer pubsub.Close()
	logger.Log.Info("Relay hub subscribed", zap.String("channel", relayPubSubChannel), zap.String("instance", h.instanceID))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env relayEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				logger.Log.Error("Relay pubsub unmarshal error", zap.Error(err))
				continue
			}
			h.deliverLocal(env.Channel, env.Payload, env.Exclude)
		}
	}
}

// Stop 关闭所有连接的发送队列，之后不再接受加入
func (h *RelayHub) Stop() {
	h.stopMu.Lock()
	h.stopped = true
	h.stopMu.Unlock()

	closed := 0
	for i := 0; i < relayShardCount; i++ {
		s := h.shards[i]
		s.mu.Lock()
		for channel, members := range s.channels {
			for c := range members {
				c.closeSend()
				closed++
			}
			delete(s.channels, channel)
		}
		s.mu.Unlock()
	}

	monitoring.RelayConnections.WithLabelValues("project").Set(0)
	monitoring.RelayConnections.WithLabelValues("notification").Set(0)
	logger.Log.Info("Relay hub stopped", zap.Int("closedConnections", closed))
}
