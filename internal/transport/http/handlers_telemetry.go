package httptransport

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"invigil/internal/telemetry"
	id "invigil/pkg/domain"
	dErrors "invigil/pkg/domain-errors"
	"invigil/pkg/platform/httputil"
	"invigil/pkg/requestcontext"
)

// TelemetryHandler accepts proctoring telemetry from exam clients. Accepted
// items get 202: delivery downstream is asynchronous and best-effort, so
// acceptance only means "queued".
type TelemetryHandler struct {
	ingestor *telemetry.Ingestor
	logger   *slog.Logger
}

func NewTelemetryHandler(ingestor *telemetry.Ingestor, logger *slog.Logger) *TelemetryHandler {
	return &TelemetryHandler{ingestor: ingestor, logger: logger}
}

type eventRequest struct {
	ExamID id.ExamID `json:"exam_id"`
	// StudentID may be omitted; it defaults to the authenticated subject.
	// When present it must match, which the ingestor enforces.
	StudentID id.UserID       `json:"student_id"`
	EventType string          `json:"event_type"`
	Message   string          `json:"message"`
	Payload   json.RawMessage `json:"payload"`
}

type violationRequest struct {
	eventRequest
	Severity     telemetry.Severity `json:"severity"`
	AutoDetected bool               `json:"auto_detected"`
	Remediation  string             `json:"remediation"`
}

type heartbeatRequest struct {
	ExamID    id.ExamID `json:"exam_id"`
	StudentID id.UserID `json:"student_id"`
	Timestamp time.Time `json:"timestamp"`
}

// monitoringEvent validates the request and builds the domain event,
// defaulting the subject to the authenticated user.
func (req eventRequest) monitoringEvent(r *http.Request) (telemetry.MonitoringEvent, error) {
	if req.ExamID.IsNil() {
		return telemetry.MonitoringEvent{}, dErrors.New(dErrors.CodeInvalidInput, "exam_id is required")
	}
	if req.EventType == "" {
		return telemetry.MonitoringEvent{}, dErrors.New(dErrors.CodeInvalidInput, "event_type is required")
	}
	studentID := req.StudentID
	if studentID.IsNil() {
		studentID = requestcontext.UserID(r.Context())
	}
	return telemetry.MonitoringEvent{
		ExamID:    req.ExamID,
		StudentID: studentID,
		EventType: req.EventType,
		Message:   req.Message,
		Payload:   req.Payload,
	}, nil
}

func (h *TelemetryHandler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.DecodeJSON[eventRequest](w, r)
	if !ok {
		return
	}
	event, err := req.monitoringEvent(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.ingestor.AcceptEvent(r.Context(), event); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *TelemetryHandler) HandleViolation(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.DecodeJSON[violationRequest](w, r)
	if !ok {
		return
	}
	event, err := req.monitoringEvent(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	violation := telemetry.ViolationEvent{
		MonitoringEvent: event,
		SeverityHint:    req.Severity,
		AutoDetected:    req.AutoDetected,
		Remediation:     req.Remediation,
	}
	if err := h.ingestor.AcceptViolation(r.Context(), violation); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *TelemetryHandler) HandleHeartbeat(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.DecodeJSON[heartbeatRequest](w, r)
	if !ok {
		return
	}
	if req.ExamID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "exam_id is required"))
		return
	}
	studentID := req.StudentID
	if studentID.IsNil() {
		studentID = requestcontext.UserID(r.Context())
	}
	hb := telemetry.HeartbeatRecord{
		StudentID: studentID,
		ExamID:    req.ExamID,
		Timestamp: req.Timestamp,
	}
	if err := h.ingestor.AcceptHeartbeat(r.Context(), hb); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
