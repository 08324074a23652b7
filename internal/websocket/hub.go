package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/mautops/casework-gin/internal/events"
	"github.com/sirupsen/logrus"
)

// Hub 管理所有 WebSocket 连接,按客户端可访问的队列分发队列事件
type Hub struct {
	// 已注册的客户端
	clients map[*Client]bool

	// 注册新客户端
	Register chan *Client

	// 注销客户端
	Unregister chan *Client

	// 待分发的事件
	events chan *events.QueueTaskEvent

	// Run 退出时关闭
	done chan struct{}

	// 互斥锁，保护 clients map
	mu sync.RWMutex

	logger *logrus.Logger
}

// NewHub 创建新的 Hub
func NewHub(logger *logrus.Logger) *Hub {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		events:     make(chan *events.QueueTaskEvent, 256),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run 运行 Hub,直到 ctx 结束
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.Register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.Unregister:
			h.remove(client)

		case event := <-h.events:
			h.dispatch(event)
		}
	}
}

// Forward 将事件总线的订阅转发给 Hub,直到订阅关闭或 ctx 结束
func (h *Hub) Forward(ctx context.Context, source <-chan *events.QueueTaskEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-source:
			if !ok {
				return
			}
			h.Publish(event)
		}
	}
}

// Publish 提交一个事件,缓冲区满时丢弃
func (h *Hub) Publish(event *events.QueueTaskEvent) {
	select {
	case h.events <- event:
	default:
		h.logger.WithField("task_id", event.TaskID).Warn("websocket hub backlog full, dropping event")
	}
}

// dispatch 把事件发给能看到相关队列的客户端
func (h *Hub) dispatch(event *events.QueueTaskEvent) {
	message, err := json.Marshal(event)
	if err != nil {
		h.logger.WithError(err).Error("failed to encode queue event")
		return
	}

	var slow []*Client
	h.mu.RLock()
	for client := range h.clients {
		if !client.CanSee(event.QueueName) && !client.CanSee(event.FromQueue) {
			continue
		}
		select {
		case client.Send <- message:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		h.remove(client)
	}
}

// remove 注销客户端并关闭发送通道
func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.Send)
	}
}

// closeAll 关闭所有客户端
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		delete(h.clients, client)
		close(client.Send)
	}
}

// unregister 注销客户端,Hub 已停止时直接返回
func (h *Hub) unregister(client *Client) {
	select {
	case h.Unregister <- client:
	case <-h.done:
	}
}

// GetClientCount 获取客户端数量
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}
