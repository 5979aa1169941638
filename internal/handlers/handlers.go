package handlers

import (
	"log/slog"

	"traceability-dashboard/internal/event"
	"traceability-dashboard/internal/metrics"
	"traceability-dashboard/internal/web"
)

// RegisterEventHandlers 将所有事件处理器注册到事件总线
// 轮询器和返工服务只负责发布事件，监控、看板和日志在这里解耦处理
func RegisterEventHandlers(bus *event.Bus, st *web.StateTracker, logger *slog.Logger) {
	logger = logger.With("component", "events")

	// --- 指标处理器 ---
	bus.Subscribe(event.RecordsChanged, func(e event.Event) {
		metrics.StationRecords.WithLabelValues(e.StationID).Set(float64(e.Records))
	})
	bus.Subscribe(event.StationActivated, func(e event.Event) {
		metrics.StationActive.WithLabelValues(e.StationID).Set(1)
	})
	bus.Subscribe(event.StationIdle, func(e event.Event) {
		metrics.StationActive.WithLabelValues(e.StationID).Set(0)
	})
	bus.Subscribe(event.StatusReworked, func(e event.Event) {
		metrics.ReworkTotal.WithLabelValues(e.StationID, string(e.To)).Inc()
	})

	// --- 看板处理器 ---
	bus.Subscribe(event.RecordsChanged, func(e event.Event) {
		st.UpdateStationRecords(e.StationID, e.Records, e.At)
	})
	bus.Subscribe(event.StationActivated, func(e event.Event) {
		st.UpdateStationActivity(e.StationID, true, e.At)
	})
	bus.Subscribe(event.StationIdle, func(e event.Event) {
		st.UpdateStationActivity(e.StationID, false, e.At)
	})
	bus.Subscribe(event.AlertRaised, func(e event.Event) {
		st.AddAlert(web.AlertState{Rule: e.Rule, StationID: e.StationID, Message: e.Message, At: e.At})
	})

	// --- 日志处理器 ---
	bus.Subscribe(event.StationActivated, func(e event.Event) {
		logger.Info("工站上线", "station_id", e.StationID, "station", e.StationName)
	})
	bus.Subscribe(event.StationIdle, func(e event.Event) {
		logger.Warn("工站离线", "station_id", e.StationID, "station", e.StationName)
	})
	bus.Subscribe(event.StatusReworked, func(e event.Event) {
		logger.Info("返工审计", "station_id", e.StationID, "record_id", e.RecordID, "from", e.From, "to", e.To, "reason", e.Message)
	})
	bus.Subscribe(event.AlertRaised, func(e event.Event) {
		logger.Warn("告警", "rule", e.Rule, "station_id", e.StationID, "message", e.Message)
	})
}
