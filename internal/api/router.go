package api

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"faceattend/internal/config"
	"faceattend/internal/export"
	"faceattend/internal/middleware"
	"faceattend/internal/models"
	"faceattend/internal/rate"
	"faceattend/internal/service"
	"faceattend/internal/store"
	"faceattend/internal/util"
)

type Handlers struct {
	cfg      config.Config
	svc      *service.Service
	exporter *export.Exporter
	limiter  *rate.Limiter
}

const maxImageBytes = 8 << 20

func NewRouter(cfg config.Config, svc *service.Service, exp *export.Exporter) http.Handler {
	h := &Handlers{
		cfg:      cfg,
		svc:      svc,
		exporter: exp,
		limiter:  rate.NewLimiter(),
	}
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestIDMiddleware)
	r.Use(middleware.RequestLogger)
	r.Use(middleware.SecurityHeaders)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Content-Type", "X-CSRF-Token"},
			AllowCredentials: true,
		}))
	}

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		util.WriteJSON(w, 200, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", h.HealthReady)

	r.Route("/api/v1", func(r chi.Router) {
		r.With(middleware.RateLimit(h.limiter, "login", 20, time.Minute, h.cfg.TrustProxy)).Post("/login", h.Login)
		r.Post("/logout", h.Logout)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authn(h.svc, h.cfg.SessionCookieName))
			r.Get("/me", h.Me)
			r.Get("/attendance", h.ListOwnAttendance)
			r.Get("/attendance/{id}", h.GetOwnAttendance)

			r.Group(func(r chi.Router) {
				r.Use(middleware.CSRFFromCookie(h.cfg.CSRFCookieName))
				r.With(middleware.RateLimit(h.limiter, "submit", 30, time.Minute, h.cfg.TrustProxy)).Post("/attendance", h.SubmitAttendance)
				r.With(middleware.RateLimit(h.limiter, "verify", 30, time.Minute, h.cfg.TrustProxy)).Post("/verify", h.VerifyIdentity)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.AdminOnly)
				r.Get("/users", h.AdminListUsers)
				r.Get("/attendance", h.AdminListAttendance)
				r.Get("/attendance/{id}", h.AdminGetAttendance)
				r.Get("/users/{id}/templates", h.AdminListTemplates)
				r.Get("/users/{id}/schedules", h.AdminListSchedules)
				r.Get("/audit-log", h.AdminAuditLog)
				r.Group(func(r chi.Router) {
					r.Use(middleware.CSRFFromCookie(h.cfg.CSRFCookieName))
					r.Post("/users", h.AdminCreateUser)
					r.Post("/users/{id}/status", h.AdminSetUserStatus)
					r.Post("/users/{id}/templates", h.AdminEnrollTemplate)
					r.Post("/users/{id}/templates/{templateID}/primary", h.AdminSetPrimaryTemplate)
					r.Delete("/templates/{id}", h.AdminDeleteTemplate)
					r.Post("/schedules", h.AdminCreateSchedule)
					r.Post("/schedules/{id}/deactivate", h.AdminDeactivateSchedule)
					r.Post("/attendance/{id}/review", h.AdminReviewAttendance)
				})
			})
		})
	})

	return r
}

func (h *Handlers) HealthReady(w http.ResponseWriter, r *http.Request) {
	ready := map[string]any{
		"checked_at": time.Now().UTC().Format(time.RFC3339),
		"components": map[string]any{},
	}
	comps := ready["components"].(map[string]any)

	ok := true
	if err := h.svc.Store().Ping(r.Context()); err != nil {
		ok = false
		comps["sqlite"] = map[string]any{"ok": false, "error": err.Error()}
	} else {
		comps["sqlite"] = map[string]any{"ok": true}
	}
	if h.exporter != nil {
		if err := h.exporter.Ping(r.Context()); err != nil {
			ok = false
			comps["export_db"] = map[string]any{"ok": false, "error": err.Error()}
		} else {
			comps["export_db"] = map[string]any{"ok": true}
		}
	}

	if ok {
		ready["status"] = "ready"
		util.WriteJSON(w, 200, ready)
		return
	}
	ready["status"] = "degraded"
	util.WriteJSON(w, 503, ready)
}

// ---- auth ----

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		util.WriteError(w, 400, "bad_request", "invalid json", middleware.RequestID(r.Context()))
		return
	}
	ip := middleware.ClientIP(r, h.cfg.TrustProxy)
	token, user, err := h.svc.Login(r.Context(), req.Email, req.Password, ip, r.UserAgent())
	if err != nil {
		status, code := 401, "invalid_credentials"
		if err == service.ErrSuspended {
			status, code = 403, "suspended"
		}
		if err == service.ErrForbidden {
			status, code = 403, "forbidden"
		}
		util.WriteError(w, status, code, err.Error(), middleware.RequestID(r.Context()))
		return
	}
	csrfToken := randomToken()
	h.setAuthCookies(w, token, csrfToken)
	util.WriteJSON(w, 200, map[string]any{
		"user_id": user.ID, "email": user.Email, "role": user.Role, "csrf_token": csrfToken,
	})
}

func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	c, _ := r.Cookie(h.cfg.SessionCookieName)
	if c != nil && c.Value != "" {
		_ = h.svc.Logout(r.Context(), c.Value)
	}
	h.clearAuthCookies(w)
	util.WriteJSON(w, 200, map[string]string{"status": "ok"})
}

func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	u, _ := middleware.User(r.Context())
	util.WriteJSON(w, 200, map[string]any{
		"id": u.ID, "employee_id": u.EmployeeID, "name": u.Name,
		"email": u.Email, "role": u.Role, "status": u.Status,
	})
}

// ---- attendance ----

type submitRequest struct {
	Type           string   `json:"type"`
	ImageBase64    string   `json:"image_base64"`
	Latitude       *float64 `json:"latitude"`
	Longitude      *float64 `json:"longitude"`
	AccuracyMeters *float64 `json:"accuracy_meters"`
	Timestamp      string   `json:"timestamp"`
	DeviceMetadata string   `json:"device_metadata"`
	IsOffline      bool     `json:"is_offline"`
}

func (h *Handlers) SubmitAttendance(w http.ResponseWriter, r *http.Request) {
	u, _ := middleware.User(r.Context())
	sub, ok := h.decodeSubmission(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.SubmitTimeout)
	defer cancel()
	rec, err := h.svc.SubmitAttendance(ctx, u.ID, sub)
	if err != nil {
		h.writeSubmitError(w, r, rec, err)
		return
	}
	util.WriteJSON(w, 201, rec)
}

func (h *Handlers) decodeSubmission(w http.ResponseWriter, r *http.Request) (service.Submission, bool) {
	var req submitRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxImageBytes)).Decode(&req); err != nil {
		util.WriteError(w, 400, "bad_request", "invalid json", middleware.RequestID(r.Context()))
		return service.Submission{}, false
	}
	typ := models.AttendanceType(req.Type)
	if typ != models.CheckIn && typ != models.CheckOut {
		util.WriteError(w, 400, "bad_request", "type must be check_in or check_out", middleware.RequestID(r.Context()))
		return service.Submission{}, false
	}
	image, err := base64.StdEncoding.DecodeString(req.ImageBase64)
	if err != nil || len(image) == 0 {
		util.WriteError(w, 400, "bad_request", "image_base64 is required", middleware.RequestID(r.Context()))
		return service.Submission{}, false
	}
	sub := service.Submission{
		Type:           typ,
		Image:          image,
		Latitude:       req.Latitude,
		Longitude:      req.Longitude,
		AccuracyMeters: req.AccuracyMeters,
		DeviceMetadata: req.DeviceMetadata,
		IsOffline:      req.IsOffline,
	}
	if req.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339, req.Timestamp)
		if err != nil {
			util.WriteError(w, 400, "bad_request", "timestamp must be RFC3339", middleware.RequestID(r.Context()))
			return service.Submission{}, false
		}
		sub.Timestamp = ts.UTC()
	}
	return sub, true
}

// writeSubmitError maps decision outcomes to HTTP statuses. The rejected
// record, when one was persisted, rides along in the details so clients can
// reference it.
func (h *Handlers) writeSubmitError(w http.ResponseWriter, r *http.Request, rec models.AttendanceRecord, err error) {
	rid := middleware.RequestID(r.Context())
	if de, ok := service.AsDecision(err); ok {
		details := de.Details
		if rec.ID != "" {
			if details == nil {
				details = map[string]any{}
			}
			details["record_id"] = rec.ID
		}
		util.WriteErrorDetails(w, decisionStatus(de.Code), de.Code, de.Message, details, rid)
		return
	}
	if err == service.ErrUserNotActive {
		util.WriteError(w, 403, "forbidden", err.Error(), rid)
		return
	}
	util.WriteError(w, 500, "internal_error", err.Error(), rid)
}

func decisionStatus(code string) int {
	switch code {
	case service.CodeAlreadyCheckedIn, service.CodeAlreadyCheckedOut,
		service.CodeNoCheckInYet, service.CodeDuplicateTemplate,
		service.CodeNoEnrolledTemplate:
		return 409
	case service.CodeLivenessUnavailable:
		return 503
	case service.CodeMissingLocation:
		return 400
	default:
		return 422
	}
}

func (h *Handlers) ListOwnAttendance(w http.ResponseWriter, r *http.Request) {
	u, _ := middleware.User(r.Context())
	q := parseAttendanceQuery(r)
	q.UserID = u.ID
	items, err := h.svc.ListAttendance(r.Context(), q)
	if err != nil {
		util.WriteError(w, 500, "internal_error", err.Error(), middleware.RequestID(r.Context()))
		return
	}
	util.WriteJSON(w, 200, map[string]any{"items": items})
}

func (h *Handlers) GetOwnAttendance(w http.ResponseWriter, r *http.Request) {
	u, _ := middleware.User(r.Context())
	rec, err := h.svc.GetAttendance(r.Context(), chi.URLParam(r, "id"))
	if err != nil || rec.UserID != u.ID {
		util.WriteError(w, 404, "not_found", "attendance record not found", middleware.RequestID(r.Context()))
		return
	}
	util.WriteJSON(w, 200, rec)
}

type verifyRequest struct {
	ImageBase64 string `json:"image_base64"`
}

func (h *Handlers) VerifyIdentity(w http.ResponseWriter, r *http.Request) {
	u, _ := middleware.User(r.Context())
	var req verifyRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxImageBytes)).Decode(&req); err != nil {
		util.WriteError(w, 400, "bad_request", "invalid json", middleware.RequestID(r.Context()))
		return
	}
	image, err := base64.StdEncoding.DecodeString(req.ImageBase64)
	if err != nil || len(image) == 0 {
		util.WriteError(w, 400, "bad_request", "image_base64 is required", middleware.RequestID(r.Context()))
		return
	}
	res, err := h.svc.VerifyIdentity(r.Context(), u.ID, image)
	if err != nil {
		h.writeSubmitError(w, r, models.AttendanceRecord{}, err)
		return
	}
	util.WriteJSON(w, 200, res)
}

// ---- admin: users ----

type createUserRequest struct {
	EmployeeID string `json:"employee_id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	Role       string `json:"role"`
}

func (h *Handlers) AdminCreateUser(w http.ResponseWriter, r *http.Request) {
	admin, _ := middleware.User(r.Context())
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		util.WriteError(w, 400, "bad_request", "invalid json", middleware.RequestID(r.Context()))
		return
	}
	if strings.TrimSpace(req.EmployeeID) == "" || strings.TrimSpace(req.Email) == "" || len(req.Password) < 8 {
		util.WriteError(w, 400, "bad_request", "employee_id, email and a password of at least 8 chars are required", middleware.RequestID(r.Context()))
		return
	}
	created, err := h.svc.CreateUser(r.Context(), admin.ID, models.User{
		EmployeeID: req.EmployeeID,
		Name:       req.Name,
		Email:      req.Email,
		Role:       models.UserRole(req.Role),
	}, req.Password)
	if err != nil {
		if err == store.ErrConflict {
			util.WriteError(w, 409, "conflict", "a user with that email or employee id already exists", middleware.RequestID(r.Context()))
			return
		}
		util.WriteError(w, 500, "internal_error", err.Error(), middleware.RequestID(r.Context()))
		return
	}
	util.WriteJSON(w, 201, userDTO(created))
}

func (h *Handlers) AdminListUsers(w http.ResponseWriter, r *http.Request) {
	limit, offset := parseLimitOffset(r)
	items, err := h.svc.ListUsers(r.Context(), models.UserQuery{
		Q:      r.URL.Query().Get("q"),
		Status: r.URL.Query().Get("status"),
		Role:   r.URL.Query().Get("role"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		util.WriteError(w, 500, "internal_error", err.Error(), middleware.RequestID(r.Context()))
		return
	}
	out := make([]map[string]any, 0, len(items))
	for _, u := range items {
		out = append(out, userDTO(u))
	}
	util.WriteJSON(w, 200, map[string]any{"items": out})
}

func (h *Handlers) AdminSetUserStatus(w http.ResponseWriter, r *http.Request) {
	admin, _ := middleware.User(r.Context())
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		util.WriteError(w, 400, "bad_request", "invalid json", middleware.RequestID(r.Context()))
		return
	}
	status := models.UserStatus(req.Status)
	switch status {
	case models.UserActive, models.UserInactive, models.UserSuspended:
	default:
		util.WriteError(w, 400, "bad_request", "status must be active, inactive or suspended", middleware.RequestID(r.Context()))
		return
	}
	if err := h.svc.SetUserStatus(r.Context(), admin.ID, chi.URLParam(r, "id"), status); err != nil {
		if err == store.ErrNotFound {
			util.WriteError(w, 404, "not_found", "user not found", middleware.RequestID(r.Context()))
			return
		}
		util.WriteError(w, 500, "internal_error", err.Error(), middleware.RequestID(r.Context()))
		return
	}
	util.WriteJSON(w, 200, map[string]string{"status": "ok"})
}

// ---- admin: templates ----

type enrollRequest struct {
	ImageBase64 string `json:"image_base64"`
	MakePrimary bool   `json:"make_primary"`
}

func (h *Handlers) AdminEnrollTemplate(w http.ResponseWriter, r *http.Request) {
	admin, _ := middleware.User(r.Context())
	var req enrollRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxImageBytes)).Decode(&req); err != nil {
		util.WriteError(w, 400, "bad_request", "invalid json", middleware.RequestID(r.Context()))
		return
	}
	image, err := base64.StdEncoding.DecodeString(req.ImageBase64)
	if err != nil || len(image) == 0 {
		util.WriteError(w, 400, "bad_request", "image_base64 is required", middleware.RequestID(r.Context()))
		return
	}
	created, err := h.svc.EnrollTemplate(r.Context(), admin.ID, chi.URLParam(r, "id"), image, req.MakePrimary)
	if err != nil {
		if err == store.ErrNotFound {
			util.WriteError(w, 404, "not_found", "user not found", middleware.RequestID(r.Context()))
			return
		}
		h.writeSubmitError(w, r, models.AttendanceRecord{}, err)
		return
	}
	util.WriteJSON(w, 201, templateDTO(created))
}

func (h *Handlers) AdminListTemplates(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListTemplates(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		util.WriteError(w, 500, "internal_error", err.Error(), middleware.RequestID(r.Context()))
		return
	}
	out := make([]map[string]any, 0, len(items))
	for _, t := range items {
		out = append(out, templateDTO(t))
	}
	util.WriteJSON(w, 200, map[string]any{"items": out})
}

func (h *Handlers) AdminDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	admin, _ := middleware.User(r.Context())
	if err := h.svc.DeleteTemplate(r.Context(), admin.ID, chi.URLParam(r, "id")); err != nil {
		if err == store.ErrNotFound {
			util.WriteError(w, 404, "not_found", "template not found", middleware.RequestID(r.Context()))
			return
		}
		util.WriteError(w, 500, "internal_error", err.Error(), middleware.RequestID(r.Context()))
		return
	}
	util.WriteJSON(w, 200, map[string]string{"status": "deleted"})
}

func (h *Handlers) AdminSetPrimaryTemplate(w http.ResponseWriter, r *http.Request) {
	admin, _ := middleware.User(r.Context())
	err := h.svc.SetPrimaryTemplate(r.Context(), admin.ID, chi.URLParam(r, "id"), chi.URLParam(r, "templateID"))
	if err != nil {
		if err == store.ErrNotFound {
			util.WriteError(w, 404, "not_found", "template not found", middleware.RequestID(r.Context()))
			return
		}
		util.WriteError(w, 500, "internal_error", err.Error(), middleware.RequestID(r.Context()))
		return
	}
	util.WriteJSON(w, 200, map[string]string{"status": "ok"})
}

// ---- admin: attendance ----

func (h *Handlers) AdminListAttendance(w http.ResponseWriter, r *http.Request) {
	q := parseAttendanceQuery(r)
	q.UserID = r.URL.Query().Get("user_id")
	items, err := h.svc.ListAttendance(r.Context(), q)
	if err != nil {
		util.WriteError(w, 500, "internal_error", err.Error(), middleware.RequestID(r.Context()))
		return
	}
	util.WriteJSON(w, 200, map[string]any{"items": items})
}

func (h *Handlers) AdminGetAttendance(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.GetAttendance(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		util.WriteError(w, 404, "not_found", "attendance record not found", middleware.RequestID(r.Context()))
		return
	}
	util.WriteJSON(w, 200, rec)
}

type reviewRequest struct {
	Decision string `json:"decision"`
	Reason   string `json:"reason"`
}

func (h *Handlers) AdminReviewAttendance(w http.ResponseWriter, r *http.Request) {
	admin, _ := middleware.User(r.Context())
	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		util.WriteError(w, 400, "bad_request", "invalid json", middleware.RequestID(r.Context()))
		return
	}
	decision := service.ReviewDecision(req.Decision)
	if decision != service.ReviewApprove && decision != service.ReviewReject {
		util.WriteError(w, 400, "bad_request", "decision must be approve or reject", middleware.RequestID(r.Context()))
		return
	}
	if decision == service.ReviewReject && strings.TrimSpace(req.Reason) == "" {
		util.WriteError(w, 400, "bad_request", "a rejection reason is required", middleware.RequestID(r.Context()))
		return
	}
	updated, err := h.svc.ReviewAttendance(r.Context(), admin.ID, chi.URLParam(r, "id"), decision, strings.TrimSpace(req.Reason))
	if err != nil {
		rid := middleware.RequestID(r.Context())
		switch {
		case err == store.ErrNotFound:
			util.WriteError(w, 404, "not_found", "attendance record not found", rid)
		case err == store.ErrConflict:
			util.WriteError(w, 409, "conflict", "record status changed concurrently", rid)
		default:
			if de, ok := service.AsDecision(err); ok {
				util.WriteErrorDetails(w, 409, de.Code, de.Message, de.Details, rid)
				return
			}
			util.WriteError(w, 500, "internal_error", err.Error(), rid)
		}
		return
	}
	util.WriteJSON(w, 200, updated)
}

// ---- admin: schedules ----

type scheduleRequest struct {
	UserID        string   `json:"user_id"`
	StartTime     string   `json:"start_time"`
	EndTime       string   `json:"end_time"`
	WorkingDays   string   `json:"working_days"`
	SiteLatitude  *float64 `json:"site_latitude"`
	SiteLongitude *float64 `json:"site_longitude"`
	RadiusMeters  float64  `json:"radius_meters"`
	EffectiveFrom string   `json:"effective_from"`
	EffectiveTo   string   `json:"effective_to"`
}

func (h *Handlers) AdminCreateSchedule(w http.ResponseWriter, r *http.Request) {
	admin, _ := middleware.User(r.Context())
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		util.WriteError(w, 400, "bad_request", "invalid json", middleware.RequestID(r.Context()))
		return
	}
	if req.UserID == "" {
		util.WriteError(w, 400, "bad_request", "user_id is required", middleware.RequestID(r.Context()))
		return
	}
	if (req.SiteLatitude == nil) != (req.SiteLongitude == nil) {
		util.WriteError(w, 400, "bad_request", "site_latitude and site_longitude must be set together", middleware.RequestID(r.Context()))
		return
	}
	if req.SiteLatitude != nil && req.RadiusMeters <= 0 {
		util.WriteError(w, 400, "bad_request", "radius_meters must be positive when a site is set", middleware.RequestID(r.Context()))
		return
	}
	sched := models.WorkSchedule{
		UserID:        req.UserID,
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
		WorkingDays:   req.WorkingDays,
		SiteLatitude:  req.SiteLatitude,
		SiteLongitude: req.SiteLongitude,
		RadiusMeters:  req.RadiusMeters,
		EffectiveFrom: time.Now().UTC(),
		Active:        true,
	}
	if req.EffectiveFrom != "" {
		t, err := time.Parse(time.RFC3339, req.EffectiveFrom)
		if err != nil {
			util.WriteError(w, 400, "bad_request", "effective_from must be RFC3339", middleware.RequestID(r.Context()))
			return
		}
		sched.EffectiveFrom = t.UTC()
	}
	if req.EffectiveTo != "" {
		t, err := time.Parse(time.RFC3339, req.EffectiveTo)
		if err != nil {
			util.WriteError(w, 400, "bad_request", "effective_to must be RFC3339", middleware.RequestID(r.Context()))
			return
		}
		tu := t.UTC()
		sched.EffectiveTo = &tu
	}
	created, err := h.svc.CreateSchedule(r.Context(), admin.ID, sched)
	if err != nil {
		if err == store.ErrNotFound {
			util.WriteError(w, 404, "not_found", "user not found", middleware.RequestID(r.Context()))
			return
		}
		util.WriteError(w, 500, "internal_error", err.Error(), middleware.RequestID(r.Context()))
		return
	}
	util.WriteJSON(w, 201, created)
}

func (h *Handlers) AdminListSchedules(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListSchedules(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		util.WriteError(w, 500, "internal_error", err.Error(), middleware.RequestID(r.Context()))
		return
	}
	util.WriteJSON(w, 200, map[string]any{"items": items})
}

func (h *Handlers) AdminDeactivateSchedule(w http.ResponseWriter, r *http.Request) {
	admin, _ := middleware.User(r.Context())
	if err := h.svc.DeactivateSchedule(r.Context(), admin.ID, chi.URLParam(r, "id")); err != nil {
		if err == store.ErrNotFound {
			util.WriteError(w, 404, "not_found", "schedule not found", middleware.RequestID(r.Context()))
			return
		}
		util.WriteError(w, 500, "internal_error", err.Error(), middleware.RequestID(r.Context()))
		return
	}
	util.WriteJSON(w, 200, map[string]string{"status": "ok"})
}

// ---- admin: audit ----

func (h *Handlers) AdminAuditLog(w http.ResponseWriter, r *http.Request) {
	limit, offset := parseLimitOffset(r)
	items, err := h.svc.ListAudit(r.Context(), models.AuditQuery{
		Action:       r.URL.Query().Get("action"),
		Actor:        r.URL.Query().Get("actor"),
		ResourceType: r.URL.Query().Get("resource_type"),
		Limit:        limit,
		Offset:       offset,
	})
	if err != nil {
		util.WriteError(w, 500, "internal_error", err.Error(), middleware.RequestID(r.Context()))
		return
	}
	util.WriteJSON(w, 200, map[string]any{"items": items})
}

// ---- helpers ----

// userDTO strips the password hash from responses.
func userDTO(u models.User) map[string]any {
	return map[string]any{
		"id": u.ID, "employee_id": u.EmployeeID, "name": u.Name,
		"email": u.Email, "role": u.Role, "status": u.Status,
		"created_at": u.CreatedAt, "last_login_at": u.LastLoginAt,
	}
}

// templateDTO never exposes the ciphertext.
func templateDTO(t models.FaceTemplate) map[string]any {
	return map[string]any{
		"id": t.ID, "user_id": t.UserID, "fingerprint": t.Fingerprint,
		"quality_score": t.QualityScore, "is_primary": t.IsPrimary, "created_at": t.CreatedAt,
	}
}

func parseAttendanceQuery(r *http.Request) models.AttendanceQuery {
	limit, offset := parseLimitOffset(r)
	q := models.AttendanceQuery{
		Status: r.URL.Query().Get("status"),
		Type:   r.URL.Query().Get("type"),
		Limit:  limit,
		Offset: offset,
	}
	if v := r.URL.Query().Get("from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			q.From = t.UTC()
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			q.To = t.UTC()
		}
	}
	return q
}

func parseLimitOffset(r *http.Request) (int, int) {
	limit := 50
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			if n > 200 {
				n = 200
			}
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

func randomToken() string {
	buf := make([]byte, 32)
	_, _ = rand.Read(buf)
	return base64.RawURLEncoding.EncodeToString(buf)
}

func (h *Handlers) setAuthCookies(w http.ResponseWriter, sessionToken, csrfToken string) {
	maxAge := int(h.cfg.SessionAbsoluteDuration().Seconds())
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.SessionCookieName,
		Value:    sessionToken,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.CSRFCookieName,
		Value:    csrfToken,
		Path:     "/",
		HttpOnly: false,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}

func (h *Handlers) clearAuthCookies(w http.ResponseWriter) {
	expiredAt := time.Unix(1, 0).UTC()
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
		Expires:  expiredAt,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.CSRFCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: false,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
		Expires:  expiredAt,
	})
}
