package event

import (
	"sync"
	"time"

	"traceability-dashboard/internal/types"
)

// EventType 定义事件的类型
type EventType string

// 定义所有业务事件类型
const (
	RecordsChanged   EventType = "RecordsChanged"   // 工站记录数发生变化
	StationActivated EventType = "StationActivated" // 工站在活跃窗口内写入了新记录
	StationIdle      EventType = "StationIdle"      // 工站超过活跃窗口未写入
	StatusReworked   EventType = "StatusReworked"   // 返工修改了记录状态
	AlertRaised      EventType = "AlertRaised"      // 告警规则命中
)

// Event 结构体定义了事件的数据负载
type Event struct {
	Type        EventType    // 事件类型
	StationID   string       // 关联的工站 ID
	StationName string       // 工站显示名称
	Records     int64        // 当前记录数 (RecordsChanged)
	Delta       int64        // 与上一轮相比的增量 (RecordsChanged)
	RecordID    int64        // 被修改的记录 ID (StatusReworked)
	From        types.Status // 返工前状态
	To          types.Status // 返工后状态
	Rule        string       // 告警规则名 (AlertRaised)
	Message     string       // 附加说明
	At          time.Time    // 事件发生时间
}

// Handler 是事件处理函数的签名
type Handler func(e Event)

// Bus 是一个简单的内存事件总线
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler // 存储事件类型到多个处理函数的映射
}

// NewBus 创建一个新的事件总线实例
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe 订阅一个特定类型的事件
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Publish 发布一个事件，所有订阅了该事件类型的处理器都将被异步调用
func (b *Bus) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, handler := range b.handlers[e.Type] {
		go handler(e)
	}
}
