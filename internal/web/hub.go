package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"traceability-dashboard/internal/metrics"
)

// broadcastBuffer 广播通道容量，写满后新消息被丢弃，下一次快照会覆盖
const broadcastBuffer = 64

// Hub 负责管理所有的 WebSocket 客户端连接，并向它们广播看板快照
type Hub struct {
	clients    map[*websocket.Conn]bool // 存储所有活跃的客户端连接
	broadcast  chan []byte              // 广播通道
	register   chan *websocket.Conn     // 注册通道，用于接收新连接
	unregister chan *websocket.Conn     // 注销通道，用于处理断开的连接
	mu         sync.Mutex               // 保护 clients
	snapshot   func() any               // 新连接建立时推送的全量状态
	done       chan struct{}            // Run 退出后关闭
	logger     *slog.Logger
}

// NewHub 创建一个新的 Hub 实例
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		broadcast:  make(chan []byte, broadcastBuffer),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		clients:    make(map[*websocket.Conn]bool),
		done:       make(chan struct{}),
		logger:     logger.With("component", "hub"),
	}
}

// SetSnapshot 设置新客户端连接时获取全量状态的函数
func (h *Hub) SetSnapshot(fn func() any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.snapshot = fn
}

// Clients 当前连接数
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Run 启动 Hub 的主循环，ctx 取消后关闭所有连接并退出
// 只能调用一次
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for conn := range h.clients {
				conn.Close()
				delete(h.clients, conn)
			}
			metrics.WebsocketClients.Set(0)
			h.mu.Unlock()
			return
		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			metrics.WebsocketClients.Set(float64(len(h.clients)))
			h.mu.Unlock()
		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			metrics.WebsocketClients.Set(float64(len(h.clients)))
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.mu.Lock()
			for conn := range h.clients {
				if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
					h.logger.Warn("写入 WebSocket 失败", "error", err)
					conn.Close()
					delete(h.clients, conn)
				}
			}
			metrics.WebsocketClients.Set(float64(len(h.clients)))
			h.mu.Unlock()
		}
	}
}

// BroadcastState 将状态序列化为 JSON 并放入广播通道，通道已满时丢弃
func (h *Hub) BroadcastState(state any) {
	message, err := json.Marshal(state)
	if err != nil {
		h.logger.Error("序列化状态失败", "error", err)
		return
	}
	select {
	case h.broadcast <- message:
	default:
		metrics.BroadcastsDropped.Inc()
		h.logger.Debug("广播通道已满，丢弃本次快照")
	}
}

// upgrader 将普通的 HTTP 连接升级为 WebSocket 连接
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// 看板部署在车间内网，允许所有来源
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ServeWs 处理来自看板的 WebSocket 请求
// 连接建立后先推送一次全量快照，再加入广播；读循环只用于感知断开
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("升级 WebSocket 失败", "error", err)
		return
	}

	h.mu.Lock()
	snapshot := h.snapshot
	h.mu.Unlock()
	if snapshot != nil {
		if err := conn.WriteJSON(snapshot()); err != nil {
			h.logger.Warn("推送初始快照失败", "error", err)
			conn.Close()
			return
		}
	}

	select {
	case h.register <- conn:
	case <-h.done:
		conn.Close()
		return
	}
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				select {
				case h.unregister <- conn:
				case <-h.done:
				}
				return
			}
		}
	}()
}
