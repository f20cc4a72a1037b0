// Package export pushes approved attendance rows to an external HR/payroll
// database. The target lives outside this service; failures here are logged
// and retried on the next tick, never affecting the primary store.
package export

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"

	"faceattend/internal/config"
	"faceattend/internal/models"
	"faceattend/internal/store"
)

var identRx = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

const cursorName = "hr_export"

type Exporter struct {
	db          *sql.DB
	st          *store.Store
	driver      string
	table       string
	interval    time.Duration
	batchSize   int
	maxAttempts int
}

// New returns nil when no export target is configured.
func New(cfg config.Config, st *store.Store) (*Exporter, error) {
	if strings.TrimSpace(cfg.ExportDBDriver) == "" || strings.TrimSpace(cfg.ExportDBDSN) == "" {
		return nil, nil
	}
	if !identRx.MatchString(cfg.ExportTable) {
		return nil, fmt.Errorf("invalid export table name %q", cfg.ExportTable)
	}
	db, err := sql.Open(cfg.ExportDBDriver, cfg.ExportDBDSN)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Exporter{
		db:          db,
		st:          st,
		driver:      cfg.ExportDBDriver,
		table:       cfg.ExportTable,
		interval:    cfg.ExportInterval,
		batchSize:   cfg.ExportBatchSize,
		maxAttempts: cfg.ExportMaxAttempts,
	}, nil
}

// Run loops until the context is cancelled.
func (e *Exporter) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.ExportOnce(ctx); err != nil {
				log.Printf("hr export failed err=%v", err)
			}
		}
	}
}

// ExportOnce pushes one batch of newly approved records and advances the
// cursor only after the whole batch lands.
func (e *Exporter) ExportOnce(ctx context.Context) error {
	since, err := e.st.GetExportCursor(ctx, cursorName)
	if err != nil {
		return fmt.Errorf("load cursor: %w", err)
	}
	records, err := e.st.ListApprovedAttendanceSince(ctx, since, e.batchSize)
	if err != nil {
		return fmt.Errorf("load batch: %w", err)
	}
	if len(records) == 0 {
		return nil
	}
	for _, r := range records {
		if err := e.upsertWithRetry(ctx, r); err != nil {
			return fmt.Errorf("export record %s: %w", r.ID, err)
		}
	}
	last := records[len(records)-1].CreatedAt
	if err := e.st.SetExportCursor(ctx, cursorName, last); err != nil {
		return fmt.Errorf("advance cursor: %w", err)
	}
	log.Printf("hr export pushed count=%d cursor=%s", len(records), last.Format(time.RFC3339))
	return nil
}

func (e *Exporter) upsertWithRetry(ctx context.Context, r models.AttendanceRecord) error {
	var lastErr error
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		if lastErr = e.upsert(ctx, r); lastErr == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
		}
	}
	return lastErr
}

// upsert is update-then-insert so replays of the same batch stay idempotent.
func (e *Exporter) upsert(ctx context.Context, r models.AttendanceRecord) error {
	updateQ := fmt.Sprintf(
		"UPDATE %s SET status=%s, confidence=%s, recorded_at=%s WHERE record_id=%s",
		e.table, e.ph(1), e.ph(2), e.ph(3), e.ph(4),
	)
	res, err := e.db.ExecContext(ctx, updateQ, string(r.Status), r.ConfidenceScore, r.Timestamp, r.ID)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}
	insertQ := fmt.Sprintf(
		"INSERT INTO %s (record_id, user_id, kind, day, status, confidence, recorded_at) VALUES (%s,%s,%s,%s,%s,%s,%s)",
		e.table, e.ph(1), e.ph(2), e.ph(3), e.ph(4), e.ph(5), e.ph(6), e.ph(7),
	)
	if _, err := e.db.ExecContext(ctx, insertQ, r.ID, r.UserID, string(r.Type), r.Day, string(r.Status), r.ConfidenceScore, r.Timestamp); err != nil {
		lower := strings.ToLower(err.Error())
		if strings.Contains(lower, "duplicate") || strings.Contains(lower, "unique") {
			_, err = e.db.ExecContext(ctx, updateQ, string(r.Status), r.ConfidenceScore, r.Timestamp, r.ID)
		}
		return err
	}
	return nil
}

func (e *Exporter) ph(i int) string {
	if strings.Contains(strings.ToLower(e.driver), "pgx") || strings.Contains(strings.ToLower(e.driver), "postgres") {
		return fmt.Sprintf("$%d", i)
	}
	return "?"
}

func (e *Exporter) Ping(ctx context.Context) error {
	return e.db.PingContext(ctx)
}

func (e *Exporter) Close() error {
	return e.db.Close()
}
