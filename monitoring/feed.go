package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// EventType 推送事件类型
type EventType string

const (
	EventPrediction  EventType = "prediction"
	EventModelReload EventType = "model_reload"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 64
)

// Event 推送给看板客户端的消息
type Event struct {
	Type      EventType       `json:"type"`
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// PredictionEvent 一次成功的作物推荐
type PredictionEvent struct {
	RequestID       string  `json:"request_id,omitempty"`
	SoilType        string  `json:"soil_type"`
	Season          string  `json:"season"`
	Place           string  `json:"place"`
	RecommendedCrop string  `json:"recommended_crop"`
	Confidence      float64 `json:"confidence"`
}

// ModelReloadEvent 模型文件热更新
type ModelReloadEvent struct {
	Path      string    `json:"path"`
	ModelType string    `json:"model_type"`
	Rows      int       `json:"rows"`
	TrainedAt time.Time `json:"trained_at"`
}

// ClientMessage 客户端消息
type ClientMessage struct {
	Type  string    `json:"type"` // subscribe, unsubscribe
	Topic EventType `json:"topic"`
}

type feedClient struct {
	conn *websocket.Conn
	send chan Event
	id   string

	mu            sync.Mutex
	subscriptions map[EventType]bool // 为空表示接收全部
}

func (c *feedClient) wants(t EventType) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subscriptions) == 0 || c.subscriptions[t]
}

func (c *feedClient) handleClientMessage(msg ClientMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch msg.Type {
	case "subscribe":
		c.subscriptions[msg.Topic] = true
	case "unsubscribe":
		delete(c.subscriptions, msg.Topic)
	}
}

// EventHub fans prediction and model events out to websocket clients. Run must be
// started before connections are accepted.
type EventHub struct {
	clients    map[*feedClient]bool
	broadcast  chan Event
	register   chan *feedClient
	unregister chan *feedClient
	done       chan struct{}
	upgrader   websocket.Upgrader
	logger     *zap.Logger

	connected atomic.Int64
}

// NewEventHub 创建推送中心，allowedOrigins 中的 "*" 允许任意来源
func NewEventHub(allowedOrigins []string, logger *zap.Logger) *EventHub {
	h := &EventHub{
		clients:    make(map[*feedClient]bool),
		broadcast:  make(chan Event, 256),
		register:   make(chan *feedClient),
		unregister: make(chan *feedClient),
		done:       make(chan struct{}),
		logger:     logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, allowed := range allowedOrigins {
				if allowed == "*" || allowed == origin {
					return true
				}
			}
			return false
		},
	}
	return h
}

// Run 处理注册、注销和广播，直到 ctx 结束
func (h *EventHub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			h.connected.Store(int64(len(h.clients)))
			h.logger.Debug("feed client connected", zap.String("client_id", client.id), zap.Int("total", len(h.clients)))

		case client := <-h.unregister:
			h.remove(client)

		case event := <-h.broadcast:
			for client := range h.clients {
				if !client.wants(event.Type) {
					continue
				}
				select {
				case client.send <- event:
				default:
					// 客户端消费过慢，断开
					h.remove(client)
				}
			}

		case <-ctx.Done():
			for client := range h.clients {
				h.remove(client)
			}
			return
		}
	}
}

func (h *EventHub) remove(client *feedClient) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)
	h.connected.Store(int64(len(h.clients)))
	h.logger.Debug("feed client disconnected", zap.String("client_id", client.id), zap.Int("total", len(h.clients)))
}

// ClientCount 当前连接数
func (h *EventHub) ClientCount() int {
	return int(h.connected.Load())
}

// Publish 非阻塞广播，队列满时丢弃
func (h *EventHub) Publish(t EventType, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		h.logger.Warn("feed event encode failed", zap.String("type", string(t)), zap.Error(err))
		return
	}
	event := Event{Type: t, ID: uuid.NewString(), Timestamp: time.Now().UTC(), Data: payload}
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("feed broadcast queue is full, dropping event", zap.String("type", string(t)))
	}
}

// HandleWebSocket 处理WebSocket连接
func (h *EventHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &feedClient{
		conn:          conn,
		send:          make(chan Event, sendBuffer),
		id:            uuid.NewString(),
		subscriptions: make(map[EventType]bool),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump(h.logger)
	go client.readPump(h)
}

func (c *feedClient) writePump(logger *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(event); err != nil {
				logger.Debug("feed write failed", zap.String("client_id", c.id), zap.Error(err))
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

func (c *feedClient) readPump(h *EventHub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("feed read failed", zap.String("client_id", c.id), zap.Error(err))
			}
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		c.handleClientMessage(msg)
	}
}
