// Package handler exposes the identity flow controller over HTTP for kiosk
// and debugging clients. Captured images stay in process; responses carry
// metadata and digests only.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"idcapture/internal/audit"
	"idcapture/internal/camera"
	"idcapture/internal/identity/models"
	"idcapture/internal/identity/service"
	"idcapture/internal/platform/middleware"
	dErrors "idcapture/pkg/domain-errors"
	"idcapture/pkg/platform/httputil"
)

// Service defines the flow operations the handler drives.
// *service.Controller implements it.
type Service interface {
	Snapshot() models.Session
	CameraState() (camera.State, camera.Reason)
	RecordConsent(ctx context.Context, granted bool) error
	Advance(ctx context.Context) error
	Capture(ctx context.Context) (*models.Artifact, error)
	RetryCapture(ctx context.Context) error
	RequestPermission(ctx context.Context) error
	GoBack(ctx context.Context) error
	GoHome(ctx context.Context) error
	Reset(ctx context.Context) error
	Submission(ctx context.Context) (*models.Submission, error)
	AuditTrail(ctx context.Context) ([]audit.Event, error)
}

// Handler handles identity flow endpoints.
type Handler struct {
	logger *slog.Logger
	flow   Service
}

// New creates a new identity Handler.
func New(flow Service, logger *slog.Logger) *Handler {
	return &Handler{
		logger: logger,
		flow:   flow,
	}
}

// Register registers the identity routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/identity", func(r chi.Router) {
		r.Get("/session", h.handleGetSession)
		r.Post("/consent", h.handleConsent)
		r.Post("/advance", h.action("advance", h.flow.Advance))
		r.Post("/capture", h.handleCapture)
		r.Post("/retry", h.action("retry", h.flow.RetryCapture))
		r.Post("/permission", h.action("permission", h.flow.RequestPermission))
		r.Post("/back", h.action("back", h.flow.GoBack))
		r.Post("/home", h.action("home", h.flow.GoHome))
		r.Post("/reset", h.action("reset", h.flow.Reset))
		r.Get("/submission", h.handleSubmission)
		r.Get("/audit", h.handleAudit)
	})
}

func (h *Handler) handleGetSession(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.session())
}

func (h *Handler) handleConsent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndValidate[ConsentRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if err := h.flow.RecordConsent(ctx, *req.Granted); err != nil {
		h.writeError(ctx, w, "consent", requestID, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.session())
}

// action adapts a no-argument flow operation to a handler that answers with
// the resulting session.
func (h *Handler) action(name string, op func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := middleware.GetRequestID(ctx)
		if err := op(ctx); err != nil {
			h.writeError(ctx, w, name, requestID, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, h.session())
	}
}

// handleCapture answers 201 for an accepted frame. When the frame was stored
// but the next step's camera failed, the capture still counts and the session
// carries the camera error.
func (h *Handler) handleCapture(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	artifact, err := h.flow.Capture(ctx)
	if artifact == nil {
		h.writeError(ctx, w, "capture", requestID, err)
		return
	}
	if err != nil {
		h.logger.WarnContext(ctx, "identity: capture stored but next step failed to start",
			"request_id", requestID,
			"purpose", artifact.Purpose.String(),
			"error", err,
		)
	}
	httputil.WriteJSON(w, http.StatusCreated, CaptureResponse{
		Artifact: toArtifactResponse(artifact),
		Session:  h.session(),
	})
}

func (h *Handler) handleSubmission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	sub, err := h.flow.Submission(ctx)
	if err != nil {
		h.writeError(ctx, w, "submission", requestID, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toSubmissionResponse(sub))
}

func (h *Handler) handleAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	events, err := h.flow.AuditTrail(ctx)
	if err != nil {
		h.writeError(ctx, w, "audit", requestID, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toAuditTrailResponse(h.flow.Snapshot().FlowID.String(), events))
}

func (h *Handler) session() SessionResponse {
	state, reason := h.flow.CameraState()
	return toSessionResponse(h.flow.Snapshot(), state, reason)
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, op, requestID string, err error) {
	if err == nil {
		err = dErrors.New(dErrors.CodeInternal, "operation returned no result")
	}
	h.logger.WarnContext(ctx, "identity: request failed",
		"op", op,
		"request_id", requestID,
		"code", string(dErrors.CodeOf(err)),
		"error", err,
	)
	httputil.WriteErrorWithKey(w, err, messageKey(err))
}

// messageKey is the localizable key for err, or empty when it has none.
func messageKey(err error) string {
	var camErr *camera.Error
	if errors.As(err, &camErr) {
		return camErr.Reason.MessageKey()
	}
	if dErrors.HasCode(err, dErrors.CodeMissingConsent) {
		return service.KeyConsentRequired
	}
	return ""
}
