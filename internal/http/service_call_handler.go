package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"renaissance-stewcall/internal/consumer"
	"renaissance-stewcall/internal/ledger"
	"renaissance-stewcall/internal/models"
	"renaissance-stewcall/internal/reconciler"

	"go.uber.org/zap"
)

// ServiceCalls operations the handler needs; implemented by *service.ServiceCallService
type ServiceCalls interface {
	Records() []models.ServiceCallRecord
	Alerts(ctx context.Context) []models.ServiceCallAlert
	GetWristbandAlerts(ctx context.Context, wristbandID string) []models.ServiceCallAlert
	GetServiceCallCount(wristbandID string) int
	AcceptServiceCall(ctx context.Context, wristbandID string, callID *int64, by string) int
	AcceptAllServiceCalls(ctx context.Context, by string) int
	ClearServiceCalls(by string) int
	ClearActiveServiceCalls(by string) int
	HideServiceCall(callID int64, by string) error
	Refresh(ctx context.Context) error
	ConnectionStatus() consumer.ConnectionStatus
	LastReport() reconciler.CycleReport
	LedgerStats() map[models.LedgerStatus]int
	LedgerEntries() []models.LedgerEntry
}

// ServiceCallHandler HTTP surface of the service call dashboard
type ServiceCallHandler struct {
	svc    ServiceCalls
	logger *zap.Logger
}

func NewServiceCallHandler(svc ServiceCalls, logger *zap.Logger) *ServiceCallHandler {
	return &ServiceCallHandler{svc: svc, logger: logger}
}

type listResponse struct {
	Records    []models.ServiceCallRecord `json:"records"`
	Connection consumer.ConnectionStatus  `json:"connection"`
	Connected  bool                       `json:"connected"`
	LastCycle  cycleSummary               `json:"last_cycle"`
}

type cycleSummary struct {
	Source    string `json:"source"`
	Parsed    int    `json:"parsed"`
	Displayed int    `json:"displayed"`
	New       int    `json:"new"`
	Changed   int    `json:"changed"`
}

// List GET /api/v1/service-calls
func (h *ServiceCallHandler) List(w http.ResponseWriter, r *http.Request) {
	status := h.svc.ConnectionStatus()
	report := h.svc.LastReport()
	records := h.svc.Records()
	for i := range records {
		if records[i].AffectedIdentifiers == nil {
			records[i].AffectedIdentifiers = []string{}
		}
	}
	writeJSON(w, http.StatusOK, Ok(listResponse{
		Records:    records,
		Connection: status,
		Connected:  status.Connected(),
		LastCycle: cycleSummary{
			Source:    string(report.Kind),
			Parsed:    report.Parsed,
			Displayed: report.Displayed,
			New:       report.New,
			Changed:   report.Changed,
		},
	}))
}

// Alerts GET /api/v1/service-calls/alerts?wristband_id=
func (h *ServiceCallHandler) Alerts(w http.ResponseWriter, r *http.Request) {
	var out []models.ServiceCallAlert
	if wid := strings.TrimSpace(r.URL.Query().Get("wristband_id")); wid != "" {
		out = h.svc.GetWristbandAlerts(r.Context(), wid)
	} else {
		out = h.svc.Alerts(r.Context())
	}
	if out == nil {
		out = []models.ServiceCallAlert{}
	}
	writeJSON(w, http.StatusOK, Ok(out))
}

// Count GET /api/v1/service-calls/count?wristband_id=
func (h *ServiceCallHandler) Count(w http.ResponseWriter, r *http.Request) {
	wid := strings.TrimSpace(r.URL.Query().Get("wristband_id"))
	if wid == "" {
		writeJSON(w, http.StatusBadRequest, Fail("wristband_id is required"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"wristband_id": wid,
		"count":        h.svc.GetServiceCallCount(wid),
	}))
}

type acceptRequest struct {
	WristbandID string `json:"wristband_id"`
	CallID      *int64 `json:"call_id"`
	By          string `json:"by"`
}

type actorRequest struct {
	By string `json:"by"`
}

// Accept POST /api/v1/service-calls/accept
func (h *ServiceCallHandler) Accept(w http.ResponseWriter, r *http.Request) {
	var req acceptRequest
	if err := readBodyJSON(r, 64<<10, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}
	if strings.TrimSpace(req.WristbandID) == "" {
		writeJSON(w, http.StatusBadRequest, Fail("wristband_id is required"))
		return
	}
	n := h.svc.AcceptServiceCall(r.Context(), strings.TrimSpace(req.WristbandID), req.CallID, req.By)
	writeJSON(w, http.StatusOK, Ok(map[string]int{"accepted": n}))
}

// AcceptAll POST /api/v1/service-calls/accept-all
func (h *ServiceCallHandler) AcceptAll(w http.ResponseWriter, r *http.Request) {
	var req actorRequest
	if err := readBodyJSON(r, 64<<10, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}
	n := h.svc.AcceptAllServiceCalls(r.Context(), req.By)
	writeJSON(w, http.StatusOK, Ok(map[string]int{"accepted": n}))
}

// Clear POST /api/v1/service-calls/clear
func (h *ServiceCallHandler) Clear(w http.ResponseWriter, r *http.Request) {
	var req actorRequest
	if err := readBodyJSON(r, 64<<10, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}
	n := h.svc.ClearServiceCalls(req.By)
	h.logger.Info("Service calls cleared", zap.Int("cleared", n), zap.String("by", req.By))
	writeJSON(w, http.StatusOK, Ok(map[string]int{"cleared": n}))
}

// ClearActive POST /api/v1/service-calls/clear-active
func (h *ServiceCallHandler) ClearActive(w http.ResponseWriter, r *http.Request) {
	var req actorRequest
	if err := readBodyJSON(r, 64<<10, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}
	n := h.svc.ClearActiveServiceCalls(req.By)
	h.logger.Info("Active service calls cleared", zap.Int("cleared", n), zap.String("by", req.By))
	writeJSON(w, http.StatusOK, Ok(map[string]int{"cleared": n}))
}

// Hide POST /api/v1/service-calls/{id}/hide
func (h *ServiceCallHandler) Hide(w http.ResponseWriter, r *http.Request, rawID string) {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid service call id"))
		return
	}
	var req actorRequest
	if err := readBodyJSON(r, 64<<10, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}
	if err := h.svc.HideServiceCall(id, req.By); err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, Fail(err.Error()))
			return
		}
		writeJSON(w, http.StatusInternalServerError, Fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]int64{"hidden": id}))
}

// Refresh POST /api/v1/service-calls/refresh
func (h *ServiceCallHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	err := h.svc.Refresh(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, Ok(map[string]bool{"refreshed": true}))
	case errors.Is(err, consumer.ErrThrottled), errors.Is(err, consumer.ErrInFlight), errors.Is(err, consumer.ErrStreaming):
		writeJSON(w, http.StatusOK, Warn(err.Error(), map[string]bool{"refreshed": false}))
	default:
		h.logger.Warn("Manual refresh failed", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, Fail(err.Error()))
	}
}

// Ledger GET /api/v1/service-calls/ledger
func (h *ServiceCallHandler) Ledger(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"stats":   h.svc.LedgerStats(),
		"entries": h.svc.LedgerEntries(),
	}))
}

// Export GET /api/v1/service-calls/export
func (h *ServiceCallHandler) Export(w http.ResponseWriter, r *http.Request) {
	data, err := GenerateServiceCallExport(h.svc.Records(), h.svc.LedgerEntries())
	if err != nil {
		h.logger.Error("Failed to generate service call export", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to generate export"))
		return
	}
	filename := fmt.Sprintf("service_calls_%s.xlsx", time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
