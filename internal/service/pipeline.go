package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"faceattend/internal/biometric"
	"faceattend/internal/geofence"
	"faceattend/internal/liveness"
	"faceattend/internal/models"
	"faceattend/internal/store"
	"faceattend/internal/vault"
	"faceattend/internal/vision"
)

// Submission is one check-in/check-out attempt. Timestamp is the capture
// time embedded by the client, which for offline-synced events may predate
// arrival; the calendar day is always derived from it, never from arrival.
type Submission struct {
	Type           models.AttendanceType
	Image          []byte
	Latitude       *float64
	Longitude      *float64
	AccuracyMeters *float64
	Timestamp      time.Time
	DeviceMetadata string
	IsOffline      bool
}

func calendarDay(t time.Time) string {
	return t.Format("2006-01-02")
}

// SubmitAttendance runs the decision pipeline: duplicate-check, location
// input, face presence, liveness, template match, geofence, finalize.
// Checks run in strict order and short-circuit on the first hard failure.
// A submission against a geofenced site must carry coordinates; omitting
// them is an input error, not a way to skip the fence. Geofence itself is
// the one soft check: an out-of-radius submission is stored as flagged for
// manual review instead of being rejected.
func (s *Service) SubmitAttendance(ctx context.Context, userID string, sub Submission) (models.AttendanceRecord, error) {
	u, err := s.st.GetUserByID(ctx, userID)
	if err != nil {
		return models.AttendanceRecord{}, err
	}
	if u.Status != models.UserActive {
		return models.AttendanceRecord{}, ErrUserNotActive
	}
	if len(sub.Image) == 0 {
		return models.AttendanceRecord{}, errors.New("image is required")
	}
	if sub.Timestamp.IsZero() {
		sub.Timestamp = time.Now().UTC()
	}
	day := calendarDay(sub.Timestamp)

	// Step 1: duplicate-check on the submission's calendar day.
	if err := s.checkDuplicates(ctx, userID, sub.Type, day); err != nil {
		return models.AttendanceRecord{}, err
	}

	// Step 2: location input. A user with a geofenced site must supply
	// coordinates; refusing here keeps the input error ahead of any model
	// call and closes the omit-your-location route around the geofence.
	sched, err := s.st.EffectiveSchedule(ctx, userID, sub.Timestamp)
	if err != nil && err != store.ErrNotFound {
		return models.AttendanceRecord{}, err
	}
	hasSite := err == nil && sched.HasSite()
	if hasSite && (sub.Latitude == nil || sub.Longitude == nil) {
		return models.AttendanceRecord{}, decision(CodeMissingLocation, "coordinates are required when a work-site geofence is configured")
	}

	// Step 3: face presence.
	face, err := s.detectBestFace(ctx, sub.Image)
	if err != nil {
		return models.AttendanceRecord{}, err
	}

	// Step 4: liveness. A sub-model outage fails closed.
	mctx, cancel := s.modelCtx(ctx)
	report, err := s.liveness.Assess(mctx, sub.Image, face.Box)
	cancel()
	if err != nil {
		if errors.Is(err, liveness.ErrUnavailable) {
			return models.AttendanceRecord{}, decision(CodeLivenessUnavailable, "liveness check is unavailable, submission not accepted")
		}
		return models.AttendanceRecord{}, err
	}
	if !report.Passed {
		rec, perr := s.persistRejected(ctx, userID, sub, day, 0, nil, report, CodeLivenessFailed)
		if perr != nil {
			return models.AttendanceRecord{}, perr
		}
		return rec, decisionWith(CodeLivenessFailed, "liveness check failed", map[string]any{
			"overall_score":  report.OverallScore,
			"liveness_score": report.LivenessScore,
			"texture_score":  report.TextureScore,
			"depth_score":    report.DepthScore,
		})
	}

	// Step 5: feature extraction and template match.
	best, err := s.matchUserTemplates(ctx, userID, sub.Image, face.Box)
	if err != nil {
		return models.AttendanceRecord{}, err
	}
	if best.similarity < s.cfg.AttendanceMatchThreshold {
		rec, perr := s.persistRejected(ctx, userID, sub, day, best.similarity, nil, report, CodeFaceNotRecognized)
		if perr != nil {
			return models.AttendanceRecord{}, perr
		}
		return rec, decisionWith(CodeFaceNotRecognized, "face does not match enrolled templates", map[string]any{
			"similarity": best.similarity,
			"threshold":  s.cfg.AttendanceMatchThreshold,
		})
	}

	// Step 6: geofence, soft. Skipped when no site is configured.
	status := models.AttendanceApproved
	var reason *string
	if hasSite {
		check := geofence.IsWithinRadius(*sub.Latitude, *sub.Longitude, *sched.SiteLatitude, *sched.SiteLongitude, sched.RadiusMeters)
		if !check.WithinRadius {
			status = models.AttendanceFlagged
			msg := fmt.Sprintf("outside geofence: distance %.0fm exceeds allowed radius %.0fm", check.DistanceMeters, sched.RadiusMeters)
			reason = &msg
		}
	}

	// Step 7: finalize and persist. A concurrent winner on the approved
	// unique index surfaces as the duplicate decision error.
	rec := models.AttendanceRecord{
		UserID:          userID,
		Type:            sub.Type,
		Timestamp:       sub.Timestamp,
		Day:             day,
		Latitude:        sub.Latitude,
		Longitude:       sub.Longitude,
		AccuracyMeters:  sub.AccuracyMeters,
		ConfidenceScore: best.similarity,
		TemplateID:      &best.templateID,
		LivenessPassed:  true,
		LivenessDetail:  marshalAudit(report),
		Status:          status,
		RejectionReason: reason,
		IsOffline:       sub.IsOffline,
		DeviceMetadata:  sub.DeviceMetadata,
	}
	if sub.IsOffline {
		now := time.Now().UTC()
		rec.SyncedAt = &now
	}
	created, err := s.st.InsertAttendance(ctx, rec)
	if err == store.ErrConflict {
		return models.AttendanceRecord{}, s.duplicateError(sub.Type)
	}
	if err != nil {
		return models.AttendanceRecord{}, err
	}

	s.recordAudit(ctx, nil, "attendance.submit", "attendance_record", created.ID, nil, map[string]any{
		"user_id": userID, "type": created.Type, "status": created.Status,
		"confidence": created.ConfidenceScore, "day": created.Day,
	}, severityForStatus(created.Status))
	s.notifier.Publish(ctx, "attendance.created", created)
	return created, nil
}

func (s *Service) checkDuplicates(ctx context.Context, userID string, typ models.AttendanceType, day string) error {
	switch typ {
	case models.CheckIn:
		exists, err := s.st.HasApprovedAttendance(ctx, userID, models.CheckIn, day)
		if err != nil {
			return err
		}
		if exists {
			return decision(CodeAlreadyCheckedIn, "an approved check-in already exists for today")
		}
	case models.CheckOut:
		checkedIn, err := s.st.HasApprovedAttendance(ctx, userID, models.CheckIn, day)
		if err != nil {
			return err
		}
		if !checkedIn {
			return decision(CodeNoCheckInYet, "no approved check-in exists for today")
		}
		checkedOut, err := s.st.HasApprovedAttendance(ctx, userID, models.CheckOut, day)
		if err != nil {
			return err
		}
		if checkedOut {
			return decision(CodeAlreadyCheckedOut, "an approved check-out already exists for today")
		}
	default:
		return fmt.Errorf("unknown attendance type %q", typ)
	}
	return nil
}

func (s *Service) duplicateError(typ models.AttendanceType) error {
	if typ == models.CheckOut {
		return decision(CodeAlreadyCheckedOut, "an approved check-out already exists for today")
	}
	return decision(CodeAlreadyCheckedIn, "an approved check-in already exists for today")
}

// detectBestFace runs detection, drops low-confidence boxes and picks the
// highest-confidence survivor, first on exact ties.
func (s *Service) detectBestFace(ctx context.Context, image []byte) (vision.Detection, error) {
	mctx, cancel := s.modelCtx(ctx)
	defer cancel()
	detections, err := s.models.Detector.Detect(mctx, image)
	if err != nil {
		return vision.Detection{}, fmt.Errorf("face detection: %w", err)
	}
	var best *vision.Detection
	for i := range detections {
		d := detections[i]
		if d.Confidence < s.cfg.FaceMinConfidence {
			continue
		}
		if best == nil || d.Confidence > best.Confidence {
			best = &detections[i]
		}
	}
	if best == nil {
		return vision.Detection{}, decision(CodeNoFaceDetected, "no face detected in the submitted image")
	}
	return *best, nil
}

type bestMatch struct {
	similarity float64
	templateID string
}

// matchUserTemplates extracts features and compares against every decrypted
// template of the user, keeping the maximum similarity. Exact ties keep the
// first template in creation order.
func (s *Service) matchUserTemplates(ctx context.Context, userID string, image []byte, box vision.BoundingBox) (bestMatch, error) {
	templates, err := s.st.ListTemplatesByUser(ctx, userID)
	if err != nil {
		return bestMatch{}, err
	}
	if len(templates) == 0 {
		return bestMatch{}, decision(CodeNoEnrolledTemplate, "no face template is enrolled for this user")
	}

	mctx, cancel := s.modelCtx(ctx)
	probe, err := s.models.Extractor.Extract(mctx, image, box)
	cancel()
	if err != nil {
		return bestMatch{}, fmt.Errorf("feature extraction: %w", err)
	}

	best := bestMatch{similarity: -2}
	for _, t := range templates {
		enrolled, err := s.vlt.DecryptTemplate(t.Ciphertext)
		if err != nil {
			// Fail closed: an undecryptable template is a dependency
			// fault, not a mismatch.
			return bestMatch{}, fmt.Errorf("decrypt template %s: %w", t.ID, err)
		}
		res, err := biometric.Compare(probe, enrolled, s.cfg.AttendanceMatchThreshold)
		if err != nil {
			return bestMatch{}, fmt.Errorf("compare template %s: %w", t.ID, err)
		}
		if res.Similarity > best.similarity {
			best = bestMatch{similarity: res.Similarity, templateID: t.ID}
		}
	}
	return best, nil
}

// persistRejected stores a rejected record so the decision stays auditable.
// Rejected rows never trip the approved-per-day index.
func (s *Service) persistRejected(ctx context.Context, userID string, sub Submission, day string, confidence float64, templateID *string, report liveness.Report, code string) (models.AttendanceRecord, error) {
	reason := code
	rec := models.AttendanceRecord{
		UserID:          userID,
		Type:            sub.Type,
		Timestamp:       sub.Timestamp,
		Day:             day,
		Latitude:        sub.Latitude,
		Longitude:       sub.Longitude,
		AccuracyMeters:  sub.AccuracyMeters,
		ConfidenceScore: confidence,
		TemplateID:      templateID,
		LivenessPassed:  report.Passed,
		LivenessDetail:  marshalAudit(report),
		Status:          models.AttendanceRejected,
		RejectionReason: &reason,
		IsOffline:       sub.IsOffline,
		DeviceMetadata:  sub.DeviceMetadata,
	}
	created, err := s.st.InsertAttendance(ctx, rec)
	if err != nil {
		return models.AttendanceRecord{}, err
	}
	s.recordAudit(ctx, nil, "attendance.reject", "attendance_record", created.ID, nil, map[string]any{
		"user_id": userID, "type": sub.Type, "reason": code,
	}, "medium")
	return created, nil
}

func severityForStatus(st models.AttendanceStatus) string {
	if st == models.AttendanceFlagged {
		return "high"
	}
	return "low"
}

// EnrollTemplate registers a new face template for a user. Enrollment
// demands a passed liveness check, a face-quality floor and near-duplicate
// screening against every existing template.
func (s *Service) EnrollTemplate(ctx context.Context, adminID, userID string, image []byte, makePrimary bool) (models.FaceTemplate, error) {
	u, err := s.st.GetUserByID(ctx, userID)
	if err != nil {
		return models.FaceTemplate{}, err
	}
	if u.Status != models.UserActive {
		return models.FaceTemplate{}, ErrUserNotActive
	}

	face, err := s.detectBestFace(ctx, image)
	if err != nil {
		return models.FaceTemplate{}, err
	}
	quality := face.Confidence * 100
	if quality < s.cfg.EnrollMinQuality {
		return models.FaceTemplate{}, decisionWith(CodeLowQualityFace, "face quality below enrollment minimum", map[string]any{
			"quality": quality, "minimum": s.cfg.EnrollMinQuality,
		})
	}

	mctx, cancel := s.modelCtx(ctx)
	report, err := s.liveness.Assess(mctx, image, face.Box)
	cancel()
	if err != nil {
		if errors.Is(err, liveness.ErrUnavailable) {
			return models.FaceTemplate{}, decision(CodeLivenessUnavailable, "liveness check is unavailable, enrollment not accepted")
		}
		return models.FaceTemplate{}, err
	}
	if !report.Passed {
		return models.FaceTemplate{}, decisionWith(CodeLivenessFailed, "liveness check failed", map[string]any{
			"overall_score": report.OverallScore,
		})
	}

	mctx, cancel = s.modelCtx(ctx)
	vector, err := s.models.Extractor.Extract(mctx, image, face.Box)
	cancel()
	if err != nil {
		return models.FaceTemplate{}, fmt.Errorf("feature extraction: %w", err)
	}

	existing, err := s.st.ListTemplatesByUser(ctx, userID)
	if err != nil {
		return models.FaceTemplate{}, err
	}
	fingerprint := vault.Fingerprint(vector)
	for _, t := range existing {
		if t.Fingerprint == fingerprint {
			return models.FaceTemplate{}, decision(CodeDuplicateTemplate, "an identical template is already enrolled")
		}
		enrolled, err := s.vlt.DecryptTemplate(t.Ciphertext)
		if err != nil {
			return models.FaceTemplate{}, fmt.Errorf("decrypt template %s: %w", t.ID, err)
		}
		res, err := biometric.Compare(vector, enrolled, s.cfg.EnrollDuplicateThreshold)
		if err != nil {
			return models.FaceTemplate{}, fmt.Errorf("compare template %s: %w", t.ID, err)
		}
		if res.Similarity > s.cfg.EnrollDuplicateThreshold {
			return models.FaceTemplate{}, decisionWith(CodeDuplicateTemplate, "a near-duplicate template is already enrolled", map[string]any{
				"similarity": res.Similarity, "threshold": s.cfg.EnrollDuplicateThreshold,
			})
		}
	}

	ciphertext, err := s.vlt.EncryptTemplate(vector)
	if err != nil {
		return models.FaceTemplate{}, fmt.Errorf("encrypt template: %w", err)
	}
	created, err := s.st.CreateTemplate(ctx, models.FaceTemplate{
		UserID:       userID,
		Ciphertext:   ciphertext,
		Fingerprint:  fingerprint,
		QualityScore: quality,
	}, makePrimary)
	if err != nil {
		return models.FaceTemplate{}, err
	}
	s.recordAudit(ctx, &adminID, "template.enroll", "face_template", created.ID, nil, map[string]any{
		"user_id": userID, "quality": created.QualityScore, "is_primary": created.IsPrimary,
	}, "medium")
	return created, nil
}

func (s *Service) ListTemplates(ctx context.Context, userID string) ([]models.FaceTemplate, error) {
	return s.st.ListTemplatesByUser(ctx, userID)
}

func (s *Service) DeleteTemplate(ctx context.Context, adminID, templateID string) error {
	t, err := s.st.GetTemplateByID(ctx, templateID)
	if err != nil {
		return err
	}
	if err := s.st.DeleteTemplate(ctx, templateID); err != nil {
		return err
	}
	s.recordAudit(ctx, &adminID, "template.delete", "face_template", templateID,
		map[string]any{"user_id": t.UserID, "is_primary": t.IsPrimary}, nil, "high")
	return nil
}

func (s *Service) SetPrimaryTemplate(ctx context.Context, adminID, userID, templateID string) error {
	if err := s.st.SetPrimaryTemplate(ctx, userID, templateID); err != nil {
		return err
	}
	s.recordAudit(ctx, &adminID, "template.set_primary", "face_template", templateID,
		nil, map[string]any{"user_id": userID}, "medium")
	return nil
}

type VerifyResult struct {
	Verified   bool    `json:"verified"`
	Similarity float64 `json:"similarity"`
	Threshold  float64 `json:"threshold"`
}

// VerifyIdentity is the ad-hoc 1:1 check against the user's templates at the
// generic threshold. It does not touch attendance state.
func (s *Service) VerifyIdentity(ctx context.Context, userID string, image []byte) (VerifyResult, error) {
	face, err := s.detectBestFace(ctx, image)
	if err != nil {
		return VerifyResult{}, err
	}
	best, err := s.matchUserTemplates(ctx, userID, image, face.Box)
	if err != nil {
		return VerifyResult{}, err
	}
	return VerifyResult{
		Verified:   best.similarity > s.cfg.VerifyMatchThreshold,
		Similarity: best.similarity,
		Threshold:  s.cfg.VerifyMatchThreshold,
	}, nil
}

type ReviewDecision string

const (
	ReviewApprove ReviewDecision = "approve"
	ReviewReject  ReviewDecision = "reject"
)

// ReviewAttendance applies a manual admin decision. Approving clears the
// rejection reason; rejecting requires a non-empty one. Every transition is
// audited with the old and new status.
func (s *Service) ReviewAttendance(ctx context.Context, adminID, recordID string, decided ReviewDecision, reason string) (models.AttendanceRecord, error) {
	rec, err := s.st.GetAttendanceByID(ctx, recordID)
	if err != nil {
		return models.AttendanceRecord{}, err
	}

	var toStatus models.AttendanceStatus
	var reasonPtr *string
	switch decided {
	case ReviewApprove:
		switch rec.Status {
		case models.AttendanceFlagged, models.AttendanceRejected, models.AttendancePending:
		default:
			return models.AttendanceRecord{}, store.ErrConflict
		}
		toStatus = models.AttendanceApproved
	case ReviewReject:
		if len(reason) == 0 {
			return models.AttendanceRecord{}, errors.New("a rejection reason is required")
		}
		if rec.Status == models.AttendanceRejected {
			return models.AttendanceRecord{}, store.ErrConflict
		}
		toStatus = models.AttendanceRejected
		reasonPtr = &reason
	default:
		return models.AttendanceRecord{}, fmt.Errorf("unknown review decision %q", decided)
	}

	if err := s.st.SetAttendanceReview(ctx, recordID, rec.Status, toStatus, adminID, reasonPtr); err != nil {
		if err == store.ErrConflict && toStatus == models.AttendanceApproved {
			// Another approved record of this type already holds the day.
			return models.AttendanceRecord{}, s.duplicateError(rec.Type)
		}
		return models.AttendanceRecord{}, err
	}
	updated, err := s.st.GetAttendanceByID(ctx, recordID)
	if err != nil {
		return models.AttendanceRecord{}, err
	}
	s.recordAudit(ctx, &adminID, "attendance.review", "attendance_record", recordID,
		map[string]any{"status": rec.Status},
		map[string]any{"status": updated.Status, "reason": reason}, "high")
	s.notifier.Publish(ctx, "attendance.reviewed", updated)
	return updated, nil
}
