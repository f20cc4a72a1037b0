package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"faceattend/internal/models"
)

var ErrNotFound = errors.New("not found")
var ErrConflict = errors.New("conflict")

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// IsUniqueViolation reports whether err came from a unique index, e.g. the
// one-approved-attendance-per-day index.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "constraint failed")
}

// ---- users ----

func (s *Store) CreateUser(ctx context.Context, u models.User) (models.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users(id,employee_id,name,email,password_hash,role,status,created_at) VALUES(?,?,?,?,?,?,?,?)`,
		u.ID, u.EmployeeID, u.Name, u.Email, u.PasswordHash, u.Role, u.Status, u.CreatedAt,
	)
	if IsUniqueViolation(err) {
		return models.User{}, ErrConflict
	}
	return u, err
}

const userCols = `id,employee_id,name,email,password_hash,role,status,created_at,last_login_at`

func scanUser(row interface{ Scan(...any) error }) (models.User, error) {
	var u models.User
	var lastLogin sql.NullTime
	err := row.Scan(&u.ID, &u.EmployeeID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.Status, &u.CreatedAt, &lastLogin)
	if err == sql.ErrNoRows {
		return models.User{}, ErrNotFound
	}
	if err != nil {
		return models.User{}, err
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLoginAt = &t
	}
	return u, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (models.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE id=?`, id))
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE email=?`, email))
}

func (s *Store) GetUserByEmployeeID(ctx context.Context, employeeID string) (models.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE employee_id=?`, employeeID))
}

func (s *Store) UpdateUserStatus(ctx context.Context, userID string, status models.UserStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET status=? WHERE id=?`, status, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) TouchUserLastLogin(ctx context.Context, userID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET last_login_at=? WHERE id=?`, at, userID)
	return err
}

func (s *Store) ListUsers(ctx context.Context, q models.UserQuery) ([]models.User, error) {
	where := []string{"1=1"}
	args := []any{}
	if q.Q != "" {
		where = append(where, "(name LIKE ? OR email LIKE ? OR employee_id LIKE ?)")
		pat := "%" + q.Q + "%"
		args = append(args, pat, pat, pat)
	}
	if q.Status != "" {
		where = append(where, "status=?")
		args = append(args, q.Status)
	}
	if q.Role != "" {
		where = append(where, "role=?")
		args = append(args, q.Role)
	}
	args = append(args, q.Limit, q.Offset)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userCols+` FROM users WHERE `+strings.Join(where, " AND ")+` ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// EnsureAdmin creates or promotes the bootstrap admin account.
func (s *Store) EnsureAdmin(ctx context.Context, email, passwordHash string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || passwordHash == "" {
		return nil
	}
	u, err := s.GetUserByEmail(ctx, email)
	if err == ErrNotFound {
		_, err = s.CreateUser(ctx, models.User{
			EmployeeID:   "ADMIN-0001",
			Name:         "Administrator",
			Email:        email,
			PasswordHash: passwordHash,
			Role:         models.RoleSuperAdmin,
			Status:       models.UserActive,
		})
		return err
	}
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE users SET role='super_admin', status='active', password_hash=? WHERE id=?`,
		passwordHash, u.ID,
	)
	return err
}

// ---- sessions ----

func (s *Store) CreateSession(ctx context.Context, sess models.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions(id,user_id,token_hash,ip_hint,user_agent_hash,expires_at,idle_expires_at,created_at,last_seen_at) VALUES(?,?,?,?,?,?,?,?,?)`,
		sess.ID, sess.UserID, sess.TokenHash, sess.IPHint, sess.UserAgentHash, sess.ExpiresAt, sess.IdleExpiresAt, sess.CreatedAt, sess.LastSeenAt,
	)
	return err
}

func (s *Store) GetSessionByTokenHash(ctx context.Context, tokenHash string) (models.Session, error) {
	var sess models.Session
	var revoked sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id,user_id,token_hash,ip_hint,user_agent_hash,expires_at,idle_expires_at,created_at,last_seen_at,revoked_at FROM sessions WHERE token_hash=?`,
		tokenHash,
	).Scan(&sess.ID, &sess.UserID, &sess.TokenHash, &sess.IPHint, &sess.UserAgentHash, &sess.ExpiresAt, &sess.IdleExpiresAt, &sess.CreatedAt, &sess.LastSeenAt, &revoked)
	if err == sql.ErrNoRows {
		return models.Session{}, ErrNotFound
	}
	if err != nil {
		return models.Session{}, err
	}
	if revoked.Valid {
		t := revoked.Time
		sess.RevokedAt = &t
	}
	return sess, nil
}

func (s *Store) TouchSession(ctx context.Context, id string, idleExpiry time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET last_seen_at=?, idle_expires_at=? WHERE id=?`, time.Now().UTC(), idleExpiry, id)
	return err
}

func (s *Store) RevokeSession(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET revoked_at=? WHERE id=?`, time.Now().UTC(), id)
	return err
}

func (s *Store) RevokeUserSessions(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET revoked_at=? WHERE user_id=? AND revoked_at IS NULL`, time.Now().UTC(), userID)
	return err
}

// ---- face templates ----

const templateCols = `id,user_id,ciphertext,fingerprint,quality_score,is_primary,created_at`

func scanTemplate(row interface{ Scan(...any) error }) (models.FaceTemplate, error) {
	var t models.FaceTemplate
	var primary int
	err := row.Scan(&t.ID, &t.UserID, &t.Ciphertext, &t.Fingerprint, &t.QualityScore, &primary, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return models.FaceTemplate{}, ErrNotFound
	}
	if err != nil {
		return models.FaceTemplate{}, err
	}
	t.IsPrimary = primary == 1
	return t, nil
}

// CreateTemplate inserts a template. When makePrimary is set the previous
// primary is demoted in the same transaction so the one-primary index holds.
func (s *Store) CreateTemplate(ctx context.Context, t models.FaceTemplate, makePrimary bool) (models.FaceTemplate, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.CreatedAt = time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.FaceTemplate{}, err
	}
	defer tx.Rollback()

	var existing int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM face_templates WHERE user_id=?`, t.UserID).Scan(&existing); err != nil {
		return models.FaceTemplate{}, err
	}
	// The first template for a user is always primary.
	t.IsPrimary = makePrimary || existing == 0
	if t.IsPrimary && existing > 0 {
		if _, err := tx.ExecContext(ctx, `UPDATE face_templates SET is_primary=0 WHERE user_id=? AND is_primary=1`, t.UserID); err != nil {
			return models.FaceTemplate{}, err
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO face_templates(id,user_id,ciphertext,fingerprint,quality_score,is_primary,created_at) VALUES(?,?,?,?,?,?,?)`,
		t.ID, t.UserID, t.Ciphertext, t.Fingerprint, t.QualityScore, boolToInt(t.IsPrimary), t.CreatedAt,
	); err != nil {
		if IsUniqueViolation(err) {
			return models.FaceTemplate{}, ErrConflict
		}
		return models.FaceTemplate{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.FaceTemplate{}, err
	}
	return t, nil
}

func (s *Store) GetTemplateByID(ctx context.Context, id string) (models.FaceTemplate, error) {
	return scanTemplate(s.db.QueryRowContext(ctx, `SELECT `+templateCols+` FROM face_templates WHERE id=?`, id))
}

// ListTemplatesByUser returns the user's templates in creation order so that
// the first template wins exact similarity ties.
func (s *Store) ListTemplatesByUser(ctx context.Context, userID string) ([]models.FaceTemplate, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+templateCols+` FROM face_templates WHERE user_id=? ORDER BY created_at ASC, id ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.FaceTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DeleteTemplate removes a template. Deleting the primary does not promote
// another; an admin has to reassign explicitly.
func (s *Store) DeleteTemplate(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM face_templates WHERE id=?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) SetPrimaryTemplate(ctx context.Context, userID, templateID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `UPDATE face_templates SET is_primary=0 WHERE user_id=? AND is_primary=1`, userID); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE face_templates SET is_primary=1 WHERE id=? AND user_id=?`, templateID, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

// ---- attendance ----

const attendanceCols = `id,user_id,type,ts,day,latitude,longitude,accuracy_meters,confidence_score,template_id,liveness_passed,liveness_detail,status,rejection_reason,approver_id,approved_at,is_offline,synced_at,device_metadata,created_at`

func scanAttendance(row interface{ Scan(...any) error }) (models.AttendanceRecord, error) {
	var r models.AttendanceRecord
	var lat, lon, acc sql.NullFloat64
	var templateID, reason, approver sql.NullString
	var livePassed, offline int
	var approvedAt, syncedAt sql.NullTime
	err := row.Scan(&r.ID, &r.UserID, &r.Type, &r.Timestamp, &r.Day, &lat, &lon, &acc, &r.ConfidenceScore,
		&templateID, &livePassed, &r.LivenessDetail, &r.Status, &reason, &approver, &approvedAt,
		&offline, &syncedAt, &r.DeviceMetadata, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return models.AttendanceRecord{}, ErrNotFound
	}
	if err != nil {
		return models.AttendanceRecord{}, err
	}
	if lat.Valid {
		v := lat.Float64
		r.Latitude = &v
	}
	if lon.Valid {
		v := lon.Float64
		r.Longitude = &v
	}
	if acc.Valid {
		v := acc.Float64
		r.AccuracyMeters = &v
	}
	if templateID.Valid {
		v := templateID.String
		r.TemplateID = &v
	}
	if reason.Valid {
		v := reason.String
		r.RejectionReason = &v
	}
	if approver.Valid {
		v := approver.String
		r.ApproverID = &v
	}
	if approvedAt.Valid {
		t := approvedAt.Time
		r.ApprovedAt = &t
	}
	if syncedAt.Valid {
		t := syncedAt.Time
		r.SyncedAt = &t
	}
	r.LivenessPassed = livePassed == 1
	r.IsOffline = offline == 1
	return r, nil
}

// InsertAttendance persists a record. A hit on the approved-per-day unique
// index comes back as ErrConflict for the pipeline to translate.
func (s *Store) InsertAttendance(ctx context.Context, r models.AttendanceRecord) (models.AttendanceRecord, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO attendance_records(`+attendanceCols+`) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		r.ID, r.UserID, r.Type, r.Timestamp, r.Day, r.Latitude, r.Longitude, r.AccuracyMeters, r.ConfidenceScore,
		r.TemplateID, boolToInt(r.LivenessPassed), r.LivenessDetail, r.Status, r.RejectionReason, r.ApproverID, r.ApprovedAt,
		boolToInt(r.IsOffline), r.SyncedAt, r.DeviceMetadata, r.CreatedAt,
	)
	if IsUniqueViolation(err) {
		return models.AttendanceRecord{}, ErrConflict
	}
	return r, err
}

func (s *Store) GetAttendanceByID(ctx context.Context, id string) (models.AttendanceRecord, error) {
	return scanAttendance(s.db.QueryRowContext(ctx, `SELECT `+attendanceCols+` FROM attendance_records WHERE id=?`, id))
}

// HasApprovedAttendance reports whether an approved record of the given type
// exists for the user on the given calendar day.
func (s *Store) HasApprovedAttendance(ctx context.Context, userID string, typ models.AttendanceType, day string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM attendance_records WHERE user_id=? AND type=? AND day=? AND status='approved'`,
		userID, typ, day,
	).Scan(&count)
	return count > 0, err
}

func (s *Store) ListAttendance(ctx context.Context, q models.AttendanceQuery) ([]models.AttendanceRecord, error) {
	where := []string{"1=1"}
	args := []any{}
	if q.UserID != "" {
		where = append(where, "user_id=?")
		args = append(args, q.UserID)
	}
	if q.Status != "" {
		where = append(where, "status=?")
		args = append(args, q.Status)
	}
	if q.Type != "" {
		where = append(where, "type=?")
		args = append(args, q.Type)
	}
	if !q.From.IsZero() {
		where = append(where, "ts >= ?")
		args = append(args, q.From)
	}
	if !q.To.IsZero() {
		where = append(where, "ts <= ?")
		args = append(args, q.To)
	}
	args = append(args, q.Limit, q.Offset)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+attendanceCols+` FROM attendance_records WHERE `+strings.Join(where, " AND ")+` ORDER BY ts DESC LIMIT ? OFFSET ?`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.AttendanceRecord
	for rows.Next() {
		r, err := scanAttendance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SetAttendanceReview applies a manual decision. The update re-checks the
// current status so two admins cannot race each other, and an approval that
// would duplicate an approved record of the same type and day trips the
// unique index.
func (s *Store) SetAttendanceReview(ctx context.Context, id string, fromStatus, toStatus models.AttendanceStatus, approverID string, reason *string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE attendance_records SET status=?, rejection_reason=?, approver_id=?, approved_at=? WHERE id=? AND status=?`,
		toStatus, reason, approverID, now, id, fromStatus,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

// ListApprovedAttendanceSince feeds the HR exporter.
func (s *Store) ListApprovedAttendanceSince(ctx context.Context, since time.Time, limit int) ([]models.AttendanceRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+attendanceCols+` FROM attendance_records WHERE status='approved' AND created_at > ? ORDER BY created_at ASC LIMIT ?`,
		since, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.AttendanceRecord
	for rows.Next() {
		r, err := scanAttendance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ---- work schedules ----

const scheduleCols = `id,user_id,start_time,end_time,working_days,site_latitude,site_longitude,radius_meters,effective_from,effective_to,active,created_at`

func scanSchedule(row interface{ Scan(...any) error }) (models.WorkSchedule, error) {
	var w models.WorkSchedule
	var lat, lon sql.NullFloat64
	var to sql.NullTime
	var active int
	err := row.Scan(&w.ID, &w.UserID, &w.StartTime, &w.EndTime, &w.WorkingDays, &lat, &lon, &w.RadiusMeters, &w.EffectiveFrom, &to, &active, &w.CreatedAt)
	if err == sql.ErrNoRows {
		return models.WorkSchedule{}, ErrNotFound
	}
	if err != nil {
		return models.WorkSchedule{}, err
	}
	if lat.Valid {
		v := lat.Float64
		w.SiteLatitude = &v
	}
	if lon.Valid {
		v := lon.Float64
		w.SiteLongitude = &v
	}
	if to.Valid {
		t := to.Time
		w.EffectiveTo = &t
	}
	w.Active = active == 1
	return w, nil
}

func (s *Store) CreateSchedule(ctx context.Context, w models.WorkSchedule) (models.WorkSchedule, error) {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	w.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO work_schedules(`+scheduleCols+`) VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`,
		w.ID, w.UserID, w.StartTime, w.EndTime, w.WorkingDays, w.SiteLatitude, w.SiteLongitude, w.RadiusMeters,
		w.EffectiveFrom, w.EffectiveTo, boolToInt(w.Active), w.CreatedAt,
	)
	return w, err
}

// EffectiveSchedule picks the schedule in force for a user at the given
// instant. If several match, the most recently created wins, with id as the
// deterministic tie-break.
func (s *Store) EffectiveSchedule(ctx context.Context, userID string, at time.Time) (models.WorkSchedule, error) {
	return scanSchedule(s.db.QueryRowContext(ctx,
		`SELECT `+scheduleCols+` FROM work_schedules
		 WHERE user_id=? AND active=1 AND effective_from<=? AND (effective_to IS NULL OR effective_to>=?)
		 ORDER BY created_at DESC, id DESC LIMIT 1`,
		userID, at, at,
	))
}

func (s *Store) ListSchedulesByUser(ctx context.Context, userID string) ([]models.WorkSchedule, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+scheduleCols+` FROM work_schedules WHERE user_id=? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.WorkSchedule
	for rows.Next() {
		w, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *Store) DeactivateSchedule(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE work_schedules SET active=0 WHERE id=?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ---- audit log ----

func (s *Store) InsertAudit(ctx context.Context, e models.AuditEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Severity == "" {
		e.Severity = "low"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log(id,actor_user_id,action,resource_type,resource_id,old_values,new_values,context,severity,created_at) VALUES(?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.ActorUserID, e.Action, e.ResourceType, e.ResourceID, e.OldValues, e.NewValues, e.Context, e.Severity, time.Now().UTC(),
	)
	return err
}

func (s *Store) ListAudit(ctx context.Context, q models.AuditQuery) ([]models.AuditEntry, error) {
	where := []string{"1=1"}
	args := []any{}
	if q.Action != "" {
		where = append(where, "action=?")
		args = append(args, q.Action)
	}
	if q.Actor != "" {
		where = append(where, "actor_user_id=?")
		args = append(args, q.Actor)
	}
	if q.ResourceType != "" {
		where = append(where, "resource_type=?")
		args = append(args, q.ResourceType)
	}
	if !q.From.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, q.From)
	}
	if !q.To.IsZero() {
		where = append(where, "created_at <= ?")
		args = append(args, q.To)
	}
	args = append(args, q.Limit, q.Offset)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,actor_user_id,action,resource_type,resource_id,old_values,new_values,context,severity,created_at FROM audit_log WHERE `+
			strings.Join(where, " AND ")+` ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		var actor sql.NullString
		if err := rows.Scan(&e.ID, &actor, &e.Action, &e.ResourceType, &e.ResourceID, &e.OldValues, &e.NewValues, &e.Context, &e.Severity, &e.CreatedAt); err != nil {
			return nil, err
		}
		if actor.Valid {
			v := actor.String
			e.ActorUserID = &v
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ---- export cursor ----

func (s *Store) GetExportCursor(ctx context.Context, name string) (time.Time, error) {
	var t time.Time
	err := s.db.QueryRowContext(ctx, `SELECT last_created_at FROM export_cursor WHERE name=?`, name).Scan(&t)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	return t, err
}

func (s *Store) SetExportCursor(ctx context.Context, name string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO export_cursor(name,last_created_at,updated_at) VALUES(?,?,?)
		 ON CONFLICT(name) DO UPDATE SET last_created_at=excluded.last_created_at, updated_at=excluded.updated_at`,
		name, at, time.Now().UTC(),
	)
	return err
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
