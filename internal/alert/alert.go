package alert

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/antonmedv/expr"
	"github.com/antonmedv/expr/vm"

	"traceability-dashboard/internal/analytics"
	"traceability-dashboard/internal/config"
	"traceability-dashboard/internal/metrics"
)

// Alert 一条命中的告警
type Alert struct {
	Rule        string  `json:"rule"`
	Severity    string  `json:"severity"`
	StationID   string  `json:"station_id"`
	StationName string  `json:"station_name"`
	Message     string  `json:"message"`
	Yield       float64 `json:"yield"`
	Total       int     `json:"total"`
}

type rule struct {
	config.AlertRule
	program *vm.Program
}

// Evaluator 对每个工站统计行求值告警规则
type Evaluator struct {
	rules  []rule
	logger *slog.Logger
}

// sampleEnv 编译期用于类型检查的环境
func sampleEnv() map[string]any {
	return env(analytics.StationStats{})
}

func env(s analytics.StationStats) map[string]any {
	return map[string]any{
		"station":   s.ID,
		"name":      s.Name,
		"operation": s.Operation,
		"ok":        s.OK,
		"ng":        s.NG,
		"pending":   s.Pending,
		"total":     s.Total,
		"yield":     s.YieldRate,
		"cycle":     s.AvgCycleTime,
		"active":    s.Active,
	}
}

// New 编译全部规则，任一规则无法编译或结果不是布尔值时返回错误
func New(rules []config.AlertRule, logger *slog.Logger) (*Evaluator, error) {
	e := &Evaluator{logger: logger.With("component", "alert")}
	for _, r := range rules {
		if strings.TrimSpace(r.Rule) == "" {
			continue
		}
		program, err := expr.Compile(r.Rule, expr.Env(sampleEnv()), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("rule %q compilation failed: %w", r.Name, err)
		}
		e.rules = append(e.rules, rule{AlertRule: r, program: program})
	}
	return e, nil
}

// Len 已加载的规则数
func (e *Evaluator) Len() int { return len(e.rules) }

// Evaluate 对每个工站逐条求值，返回全部命中的告警
// 单条规则执行失败只记录日志
func (e *Evaluator) Evaluate(stats []analytics.StationStats) []Alert {
	alerts := []Alert{}
	for _, s := range stats {
		vars := env(s)
		for _, r := range e.rules {
			out, err := expr.Run(r.program, vars)
			if err != nil {
				e.logger.Error("规则执行失败", "rule", r.Name, "station_id", s.ID, "error", err)
				continue
			}
			hit, ok := out.(bool)
			if !ok || !hit {
				continue
			}
			metrics.AlertsFired.WithLabelValues(r.Name).Inc()
			alerts = append(alerts, Alert{
				Rule:        r.Name,
				Severity:    r.Severity,
				StationID:   s.ID,
				StationName: s.Name,
				Message:     render(r.Message, s),
				Yield:       s.YieldRate,
				Total:       s.Total,
			})
		}
	}
	return alerts
}

// render 替换消息模板中的 {station} {yield} {pending} {total}
func render(msg string, s analytics.StationStats) string {
	if msg == "" {
		return s.Name
	}
	return strings.NewReplacer(
		"{station}", s.Name,
		"{yield}", fmt.Sprintf("%.2f", s.YieldRate),
		"{pending}", fmt.Sprint(s.Pending),
		"{total}", fmt.Sprint(s.Total),
	).Replace(msg)
}
