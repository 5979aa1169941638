package persistence

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"traceability-dashboard/internal/errs"
	"traceability-dashboard/internal/types"
)

// entryRework 日志类型：一次返工状态变更
const entryRework = "REWORK"

// ReworkEntry 一次返工状态变更的审计记录
type ReworkEntry struct {
	ID        string       `json:"id"`
	StationID string       `json:"station_id"`
	Table     string       `json:"table"`
	RecordID  int64        `json:"record_id"`
	From      types.Status `json:"from"`
	To        types.Status `json:"to"`
	Operator  string       `json:"operator,omitempty"`
	Reason    string       `json:"reason,omitempty"`
	TraceID   string       `json:"trace_id,omitempty"`
	At        time.Time    `json:"at"`
}

// LogEntry 代表日志文件中的一行
type LogEntry struct {
	Type   string       `json:"type"`
	Rework *ReworkEntry `json:"rework,omitempty"`
}

// WAL 以 JSON 行追加写入的审计日志，每条记录写入后立即刷盘
type WAL struct {
	file *os.File   // 日志文件句柄
	mu   sync.Mutex // 互斥锁，保证文件写入的原子性
}

// NewWAL 创建或打开一个日志文件，父目录不存在时自动创建
func NewWAL(path string) (*WAL, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errs.Wrapf(err, "创建日志目录 %s", dir)
		}
	}
	// O_APPEND: 追加写入, O_CREATE: 文件不存在则创建, O_RDWR: 读写模式
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, errs.Wrapf(err, "打开日志文件 %s", path)
	}
	return &WAL{file: file}, nil
}

// Append 写入一条返工记录
func (w *WAL) Append(e ReworkEntry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	data, err := json.Marshal(LogEntry{Type: entryRework, Rework: &e})
	if err != nil {
		return errs.Wrap(err, "序列化返工记录")
	}
	if _, err := w.file.Write(append(data, '\n')); err != nil {
		return errs.Wrap(err, "写入返工记录")
	}
	// 确保数据被刷新到磁盘，防止数据丢失
	return w.file.Sync()
}

// Replay 按写入顺序读出全部返工记录，忽略损坏的行
func (w *WAL) Replay() ([]ReworkEntry, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return nil, errs.Wrap(err, "定位日志开头")
	}

	var out []ReworkEntry
	scanner := bufio.NewScanner(w.file)
	for scanner.Scan() {
		var entry LogEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		if entry.Type == entryRework && entry.Rework != nil {
			out = append(out, *entry.Rework)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errs.Wrap(err, "读取日志")
	}

	// 恢复文件指针到末尾，以便后续追加写入
	if _, err := w.file.Seek(0, io.SeekEnd); err != nil {
		return nil, errs.Wrap(err, "定位日志末尾")
	}
	return out, nil
}

// Close 关闭日志文件
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}
