package models

import "time"

type UserStatus string

const (
	UserActive    UserStatus = "active"
	UserInactive  UserStatus = "inactive"
	UserSuspended UserStatus = "suspended"
)

type UserRole string

const (
	RoleEmployee   UserRole = "employee"
	RoleAdmin      UserRole = "admin"
	RoleSuperAdmin UserRole = "super_admin"
)

type User struct {
	ID           string
	EmployeeID   string
	Name         string
	Email        string
	PasswordHash string
	Role         UserRole
	Status       UserStatus
	CreatedAt    time.Time
	LastLoginAt  *time.Time
}

// FaceTemplate holds an enrolled biometric reference. The feature vector is
// stored only as AES-GCM ciphertext; Fingerprint is a one-way hash used for
// cheap duplicate screening, never for authentication.
type FaceTemplate struct {
	ID           string
	UserID       string
	Ciphertext   string
	Fingerprint  string
	QualityScore float64
	IsPrimary    bool
	CreatedAt    time.Time
}

type AttendanceType string

const (
	CheckIn  AttendanceType = "check_in"
	CheckOut AttendanceType = "check_out"
)

type AttendanceStatus string

const (
	AttendancePending  AttendanceStatus = "pending"
	AttendanceApproved AttendanceStatus = "approved"
	AttendanceRejected AttendanceStatus = "rejected"
	AttendanceFlagged  AttendanceStatus = "flagged"
)

type AttendanceRecord struct {
	ID              string           `json:"id"`
	UserID          string           `json:"user_id"`
	Type            AttendanceType   `json:"type"`
	Timestamp       time.Time        `json:"timestamp"`
	Day             string           `json:"day"`
	Latitude        *float64         `json:"latitude,omitempty"`
	Longitude       *float64         `json:"longitude,omitempty"`
	AccuracyMeters  *float64         `json:"accuracy_meters,omitempty"`
	ConfidenceScore float64          `json:"confidence_score"`
	TemplateID      *string          `json:"template_id,omitempty"`
	LivenessPassed  bool             `json:"liveness_passed"`
	LivenessDetail  string           `json:"liveness_detail,omitempty"`
	Status          AttendanceStatus `json:"status"`
	RejectionReason *string          `json:"rejection_reason,omitempty"`
	ApproverID      *string          `json:"approver_id,omitempty"`
	ApprovedAt      *time.Time       `json:"approved_at,omitempty"`
	IsOffline       bool             `json:"is_offline"`
	SyncedAt        *time.Time       `json:"synced_at,omitempty"`
	DeviceMetadata  string           `json:"device_metadata,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}

type WorkSchedule struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	StartTime     string     `json:"start_time"`
	EndTime       string     `json:"end_time"`
	WorkingDays   string     `json:"working_days"`
	SiteLatitude  *float64   `json:"site_latitude,omitempty"`
	SiteLongitude *float64   `json:"site_longitude,omitempty"`
	RadiusMeters  float64    `json:"radius_meters"`
	EffectiveFrom time.Time  `json:"effective_from"`
	EffectiveTo   *time.Time `json:"effective_to,omitempty"`
	Active        bool       `json:"active"`
	CreatedAt     time.Time  `json:"created_at"`
}

// HasSite reports whether the schedule carries usable geofence coordinates.
func (w WorkSchedule) HasSite() bool {
	return w.SiteLatitude != nil && w.SiteLongitude != nil && w.RadiusMeters > 0
}

type AuditEntry struct {
	ID           string    `json:"id"`
	ActorUserID  *string   `json:"actor_user_id,omitempty"`
	Action       string    `json:"action"`
	ResourceType string    `json:"resource_type"`
	ResourceID   string    `json:"resource_id"`
	OldValues    string    `json:"old_values,omitempty"`
	NewValues    string    `json:"new_values,omitempty"`
	Context      string    `json:"context,omitempty"`
	Severity     string    `json:"severity"`
	CreatedAt    time.Time `json:"created_at"`
}

type Session struct {
	ID            string
	UserID        string
	TokenHash     string
	IPHint        string
	UserAgentHash string
	ExpiresAt     time.Time
	IdleExpiresAt time.Time
	CreatedAt     time.Time
	LastSeenAt    time.Time
	RevokedAt     *time.Time
}

type AttendanceQuery struct {
	UserID string
	Status string
	Type   string
	From   time.Time
	To     time.Time
	Limit  int
	Offset int
}

type AuditQuery struct {
	Action       string
	Actor        string
	ResourceType string
	From         time.Time
	To           time.Time
	Limit        int
	Offset       int
}

type UserQuery struct {
	Q      string
	Status string
	Role   string
	Limit  int
	Offset int
}
