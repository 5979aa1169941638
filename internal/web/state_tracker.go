package web

import (
	"sync"
	"time"

	"traceability-dashboard/internal/station"
	"traceability-dashboard/internal/types"
)

// maxAlerts 快照中保留的最近告警条数
const maxAlerts = 20

// StationState 定义了用于看板展示的工站状态
type StationState struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Kind       types.StationKind `json:"kind"`
	Operation  string            `json:"operation"`
	Active     bool              `json:"active"`
	Records    int64             `json:"records"`
	LastChange time.Time         `json:"last_change"`
}

// AlertState 看板上展示的告警
type AlertState struct {
	Rule      string    `json:"rule"`
	Severity  string    `json:"severity"`
	StationID string    `json:"station_id"`
	Message   string    `json:"message"`
	At        time.Time `json:"at"`
}

// GlobalState 代表整条产线的实时状态快照
type GlobalState struct {
	Stations  map[string]StationState `json:"stations"`
	Alerts    []AlertState            `json:"alerts"`
	UpdatedAt time.Time               `json:"updated_at"`
}

// StateTracker 负责追踪各工站的实时状态，并通知看板更新
type StateTracker struct {
	mu    sync.RWMutex
	state GlobalState
	hub   *Hub
}

// NewStateTracker 创建一个新的 StateTracker 实例，并登记目录中的全部工站
func NewStateTracker(hub *Hub, stations []station.Descriptor) *StateTracker {
	st := &StateTracker{
		state: GlobalState{Stations: make(map[string]StationState, len(stations)), Alerts: []AlertState{}},
		hub:   hub,
	}
	for _, d := range stations {
		st.state.Stations[d.ID] = StationState{ID: d.ID, Name: d.Name, Kind: d.Kind, Operation: d.Operation}
	}
	hub.SetSnapshot(func() any { return st.GetStateSnapshot() })
	return st
}

// UpdateStationActivity 更新工站在线状态，并广播最新的全局状态
func (st *StateTracker) UpdateStationActivity(id string, active bool, at time.Time) {
	st.update(id, at, func(s *StationState) { s.Active = active })
}

// UpdateStationRecords 更新工站记录数，并广播最新的全局状态
func (st *StateTracker) UpdateStationRecords(id string, records int64, at time.Time) {
	st.update(id, at, func(s *StationState) { s.Records = records })
}

func (st *StateTracker) update(id string, at time.Time, fn func(*StationState)) {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.state.Stations[id]
	if !ok {
		// 未登记的工站不创建
		return
	}
	fn(&s)
	s.LastChange = at
	st.state.Stations[id] = s
	st.state.UpdatedAt = at

	st.hub.BroadcastState(st.copyLocked())
}

// AddAlert 追加一条告警，只保留最近 maxAlerts 条
func (st *StateTracker) AddAlert(a AlertState) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.state.Alerts = append(st.state.Alerts, a)
	if n := len(st.state.Alerts); n > maxAlerts {
		st.state.Alerts = append([]AlertState{}, st.state.Alerts[n-maxAlerts:]...)
	}
	st.state.UpdatedAt = a.At
	st.hub.BroadcastState(st.copyLocked())
}

// GetStateSnapshot 返回当前全局状态的一个深拷贝副本
// 用于新客户端连接时获取一次全量数据
func (st *StateTracker) GetStateSnapshot() GlobalState {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.copyLocked()
}

func (st *StateTracker) copyLocked() GlobalState {
	out := GlobalState{
		Stations:  make(map[string]StationState, len(st.state.Stations)),
		Alerts:    append([]AlertState{}, st.state.Alerts...),
		UpdatedAt: st.state.UpdatedAt,
	}
	for id, s := range st.state.Stations {
		out.Stations[id] = s
	}
	return out
}
