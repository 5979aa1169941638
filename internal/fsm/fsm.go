package fsm

import (
	"errors"
	"fmt"
	"sync"

	"traceability-dashboard/internal/types"
)

// State 工件在某工站的质量状态
type State = types.Status

// Event 定义事件类型
type Event string

const (
	EventPass Event = "PASS" // 判定合格 (首次判定或返工通过)
	EventFail Event = "FAIL" // 判定不合格 (首次判定或隔离)
)

// ErrInvalidTransition 当前状态不允许触发该事件
var ErrInvalidTransition = errors.New("invalid transition")

// FSM 有限状态机
type FSM struct {
	Current State
	mu      sync.Mutex
	// transitions 定义状态转移表: CurrentState -> Event -> NextState
	transitions map[State]map[Event]State
	// callbacks 定义状态变更后的回调: State -> func()
	callbacks map[State]func(targetID string)
	TargetID  string // 关联的目标对象ID（如记录ID）
}

// NewFSM 以给定状态创建状态机；initial 不是 OK/NG 时视为 Pending
func NewFSM(targetID string, initial State) *FSM {
	if initial != types.StatusOK && initial != types.StatusNG {
		initial = types.StatusPending
	}
	fsm := &FSM{
		Current:     initial,
		TargetID:    targetID,
		transitions: make(map[State]map[Event]State),
		callbacks:   make(map[State]func(string)),
	}
	fsm.initTransitions()
	return fsm
}

func (f *FSM) initTransitions() {
	f.addTransition(types.StatusPending, EventPass, types.StatusOK)
	f.addTransition(types.StatusPending, EventFail, types.StatusNG)

	f.addTransition(types.StatusNG, EventPass, types.StatusOK) // 返工合格
	f.addTransition(types.StatusOK, EventFail, types.StatusNG) // 复检发现缺陷，隔离
}

func (f *FSM) addTransition(from State, event Event, to State) {
	if _, ok := f.transitions[from]; !ok {
		f.transitions[from] = make(map[Event]State)
	}
	f.transitions[from][event] = to
}

// EventFor 返回把工件带到目标状态的事件，目标不是 OK/NG 时返回 false
func EventFor(target State) (Event, bool) {
	switch target {
	case types.StatusOK:
		return EventPass, true
	case types.StatusNG:
		return EventFail, true
	}
	return "", false
}

// RegisterCallback 注册状态进入时的回调
func (f *FSM) RegisterCallback(state State, callback func(targetID string)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callbacks[state] = callback
}

// Fire 触发事件
func (f *FSM) Fire(event Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	nextState, ok := f.transitions[f.Current][event]
	if !ok {
		return fmt.Errorf("%w: cannot fire %s from %s", ErrInvalidTransition, event, f.Current)
	}
	f.Current = nextState

	// 回调中不要再调用 Fire
	if cb, exists := f.callbacks[nextState]; exists {
		cb(f.TargetID)
	}
	return nil
}

// Transition 校验 from -> to 是否合法，合法时返回 nil
func Transition(targetID string, from, to State) error {
	event, ok := EventFor(to)
	if !ok {
		return fmt.Errorf("%w: unsupported target status %q", ErrInvalidTransition, to)
	}
	return NewFSM(targetID, from).Fire(event)
}
