package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"faceattend/internal/auth"
	"faceattend/internal/config"
	"faceattend/internal/liveness"
	"faceattend/internal/models"
	"faceattend/internal/notify"
	"faceattend/internal/store"
	"faceattend/internal/vault"
	"faceattend/internal/vision"
)

// Service is the single composition of the attendance core: the decision
// pipeline plus the session, review and admin operations around it. It is
// constructed once at startup and passed to the handlers explicitly.
type Service struct {
	cfg      config.Config
	st       *store.Store
	vlt      *vault.Vault
	models   vision.Models
	liveness *liveness.Aggregator
	notifier notify.Notifier
}

func New(cfg config.Config, st *store.Store, vlt *vault.Vault, m vision.Models, notifier notify.Notifier) *Service {
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	return &Service{
		cfg:      cfg,
		st:       st,
		vlt:      vlt,
		models:   m,
		liveness: liveness.New(m, cfg.LivenessThreshold),
		notifier: notifier,
	}
}

func (s *Service) Store() *store.Store { return s.st }

func hashUA(ua string) string {
	sum := sha256.Sum256([]byte(ua))
	return hex.EncodeToString(sum[:])
}

// modelCtx bounds one external inference call so a hung model cannot stall
// the submission forever.
func (s *Service) modelCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.ModelTimeout)
}

// ---- sessions ----

func (s *Service) Login(ctx context.Context, email, password, ip, userAgent string) (string, models.User, error) {
	u, err := s.st.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return "", models.User{}, ErrInvalidCredentials
	}
	if !auth.VerifyPassword(u.PasswordHash, password) {
		return "", models.User{}, ErrInvalidCredentials
	}
	switch u.Status {
	case models.UserSuspended:
		return "", models.User{}, ErrSuspended
	case models.UserInactive:
		return "", models.User{}, ErrForbidden
	}

	raw, tokenHash, err := auth.NewOpaqueToken()
	if err != nil {
		return "", models.User{}, err
	}
	now := time.Now().UTC()
	sess := models.Session{
		ID:            uuid.NewString(),
		UserID:        u.ID,
		TokenHash:     tokenHash,
		IPHint:        ip,
		UserAgentHash: hashUA(userAgent),
		ExpiresAt:     now.Add(s.cfg.SessionAbsoluteDuration()),
		IdleExpiresAt: now.Add(s.cfg.SessionIdleDuration()),
		CreatedAt:     now,
		LastSeenAt:    now,
	}
	if err := s.st.CreateSession(ctx, sess); err != nil {
		return "", models.User{}, err
	}
	_ = s.st.TouchUserLastLogin(ctx, u.ID, now)
	return raw, u, nil
}

func (s *Service) ValidateSession(ctx context.Context, rawToken string) (models.User, models.Session, error) {
	sess, err := s.st.GetSessionByTokenHash(ctx, auth.HashToken(rawToken))
	if err != nil {
		return models.User{}, models.Session{}, ErrInvalidCredentials
	}
	now := time.Now().UTC()
	if sess.RevokedAt != nil || now.After(sess.ExpiresAt) || now.After(sess.IdleExpiresAt) {
		return models.User{}, models.Session{}, ErrInvalidCredentials
	}
	_ = s.st.TouchSession(ctx, sess.ID, now.Add(s.cfg.SessionIdleDuration()))

	u, err := s.st.GetUserByID(ctx, sess.UserID)
	if err != nil {
		return models.User{}, models.Session{}, ErrInvalidCredentials
	}
	if u.Status != models.UserActive {
		return models.User{}, models.Session{}, ErrForbidden
	}
	return u, sess, nil
}

func (s *Service) Logout(ctx context.Context, rawToken string) error {
	sess, err := s.st.GetSessionByTokenHash(ctx, auth.HashToken(rawToken))
	if err != nil {
		return nil
	}
	return s.st.RevokeSession(ctx, sess.ID)
}

// ---- user admin ----

func (s *Service) CreateUser(ctx context.Context, adminID string, u models.User, password string) (models.User, error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return models.User{}, err
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.PasswordHash = hash
	if u.Role == "" {
		u.Role = models.RoleEmployee
	}
	if u.Status == "" {
		u.Status = models.UserActive
	}
	created, err := s.st.CreateUser(ctx, u)
	if err != nil {
		return models.User{}, err
	}
	s.recordAudit(ctx, &adminID, "user.create", "user", created.ID, nil,
		map[string]any{"employee_id": created.EmployeeID, "role": created.Role, "status": created.Status}, "medium")
	return created, nil
}

func (s *Service) SetUserStatus(ctx context.Context, adminID, userID string, status models.UserStatus) error {
	u, err := s.st.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.st.UpdateUserStatus(ctx, userID, status); err != nil {
		return err
	}
	if status != models.UserActive {
		if err := s.st.RevokeUserSessions(ctx, userID); err != nil {
			return err
		}
	}
	s.recordAudit(ctx, &adminID, "user.set_status", "user", userID,
		map[string]any{"status": u.Status}, map[string]any{"status": status}, "high")
	return nil
}

func (s *Service) ListUsers(ctx context.Context, q models.UserQuery) ([]models.User, error) {
	return s.st.ListUsers(ctx, q)
}

// ---- work schedules ----

func (s *Service) CreateSchedule(ctx context.Context, adminID string, w models.WorkSchedule) (models.WorkSchedule, error) {
	if _, err := s.st.GetUserByID(ctx, w.UserID); err != nil {
		return models.WorkSchedule{}, err
	}
	created, err := s.st.CreateSchedule(ctx, w)
	if err != nil {
		return models.WorkSchedule{}, err
	}
	s.recordAudit(ctx, &adminID, "schedule.create", "work_schedule", created.ID, nil,
		map[string]any{"user_id": created.UserID, "radius_meters": created.RadiusMeters}, "low")
	return created, nil
}

func (s *Service) ListSchedules(ctx context.Context, userID string) ([]models.WorkSchedule, error) {
	return s.st.ListSchedulesByUser(ctx, userID)
}

func (s *Service) DeactivateSchedule(ctx context.Context, adminID, scheduleID string) error {
	if err := s.st.DeactivateSchedule(ctx, scheduleID); err != nil {
		return err
	}
	s.recordAudit(ctx, &adminID, "schedule.deactivate", "work_schedule", scheduleID, nil, nil, "low")
	return nil
}

// ---- queries ----

func (s *Service) ListAttendance(ctx context.Context, q models.AttendanceQuery) ([]models.AttendanceRecord, error) {
	return s.st.ListAttendance(ctx, q)
}

func (s *Service) GetAttendance(ctx context.Context, id string) (models.AttendanceRecord, error) {
	return s.st.GetAttendanceByID(ctx, id)
}

func (s *Service) ListAudit(ctx context.Context, q models.AuditQuery) ([]models.AuditEntry, error) {
	return s.st.ListAudit(ctx, q)
}

// ---- audit recorder ----

// recordAudit appends to the audit log. The write is best-effort: a failure
// is surfaced on the log sink but never rolls back the primary operation.
func (s *Service) recordAudit(ctx context.Context, actor *string, action, resourceType, resourceID string, oldValues, newValues any, severity string) {
	entry := models.AuditEntry{
		ActorUserID:  actor,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		OldValues:    marshalAudit(oldValues),
		NewValues:    marshalAudit(newValues),
		Severity:     severity,
	}
	if err := s.st.InsertAudit(ctx, entry); err != nil {
		log.Printf("audit write failed action=%s resource=%s/%s err=%v", action, resourceType, resourceID, err)
	}
}

func marshalAudit(v any) string {
	if v == nil {
		return ""
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(raw)
}
