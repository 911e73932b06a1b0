// Package db persists sessions, alerts, per-rep exercise stats and user
// preferences in sqlite.
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/visiontrack/visiontrack/internal/alert"
)

type DB struct {
	*sql.DB
}

// NewDB opens (creating if needed) the sqlite database at path. Schema is
// managed separately through MigrateUp.
func NewDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under the API + pipeline writers.
	sqlDB.SetMaxOpenConns(1)
	if _, err := sqlDB.Exec(`PRAGMA journal_mode=WAL; PRAGMA foreign_keys=ON;`); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to set pragmas: %w", err)
	}
	return &DB{sqlDB}, nil
}

// Session is one recorded analysis session.
type Session struct {
	ID             string     `json:"id"`
	Mode           string     `json:"mode"`
	StartTime      time.Time  `json:"start_time"`
	EndTime        *time.Time `json:"end_time,omitempty"`
	TotalReps      int        `json:"total_reps"`
	TotalAlerts    int        `json:"total_alerts"`
	PeopleDetected int        `json:"people_detected"`
}

// CreateSession inserts a new session and returns its id, which is the
// mode prefix plus a UUID.
func (db *DB) CreateSession(mode string, start time.Time) (string, error) {
	id := fmt.Sprintf("%s_%s", mode, uuid.NewString())
	_, err := db.Exec(
		`INSERT INTO sessions (id, mode, start_time) VALUES (?, ?, ?)`,
		id, mode, start.UnixMilli(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	return id, nil
}

// EndSession closes a session and records its totals.
func (db *DB) EndSession(id string, end time.Time, totalReps, totalAlerts, peopleDetected int) error {
	res, err := db.Exec(
		`UPDATE sessions SET end_time = ?, total_reps = ?, total_alerts = ?, people_detected = ?
		 WHERE id = ?`,
		end.UnixMilli(), totalReps, totalAlerts, peopleDetected, id,
	)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("session %s not found", id)
	}
	return nil
}

func scanSession(row interface{ Scan(...any) error }) (Session, error) {
	var s Session
	var startMS int64
	var endMS sql.NullInt64
	if err := row.Scan(&s.ID, &s.Mode, &startMS, &endMS, &s.TotalReps, &s.TotalAlerts, &s.PeopleDetected); err != nil {
		return Session{}, err
	}
	s.StartTime = time.UnixMilli(startMS)
	if endMS.Valid {
		t := time.UnixMilli(endMS.Int64)
		s.EndTime = &t
	}
	return s, nil
}

// Session fetches one session by id.
func (db *DB) Session(id string) (Session, error) {
	row := db.QueryRow(
		`SELECT id, mode, start_time, end_time, total_reps, total_alerts, people_detected
		 FROM sessions WHERE id = ?`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		// Keep the sentinel wrapped so handlers can map it to 404.
		return Session{}, fmt.Errorf("session %s not found: %w", id, err)
	}
	if err != nil {
		return Session{}, fmt.Errorf("failed to fetch session: %w", err)
	}
	return s, nil
}

// Sessions returns up to limit most recent sessions, newest first.
func (db *DB) Sessions(limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(
		`SELECT id, mode, start_time, end_time, total_reps, total_alerts, people_detected
		 FROM sessions ORDER BY start_time DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// InsertAlert records a delivered alert.
func (db *DB) InsertAlert(a alert.Alert) error {
	_, err := db.Exec(
		`INSERT INTO alerts (id, session_id, type, person_id, x, y, confidence, description, created_at, resolved)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.SessionID, string(a.Type), a.PersonID, a.Location.X, a.Location.Y,
		a.Confidence, a.Description, a.Time.UnixMilli(), boolToInt(a.Resolved),
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

// SessionAlerts returns the alerts recorded for a session, oldest first.
func (db *DB) SessionAlerts(sessionID string) ([]alert.Alert, error) {
	rows, err := db.Query(
		`SELECT id, type, person_id, x, y, confidence, description, created_at, resolved
		 FROM alerts WHERE session_id = ? ORDER BY created_at`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var out []alert.Alert
	for rows.Next() {
		var a alert.Alert
		var typ string
		var createdMS int64
		var resolved int
		if err := rows.Scan(&a.ID, &typ, &a.PersonID, &a.Location.X, &a.Location.Y,
			&a.Confidence, &a.Description, &createdMS, &resolved); err != nil {
			return nil, err
		}
		a.Type = alert.Type(typ)
		a.Time = time.UnixMilli(createdMS)
		a.SessionID = sessionID
		a.Resolved = resolved != 0
		out = append(out, a)
	}
	return out, rows.Err()
}

// ResolveAlert marks a stored alert resolved.
func (db *DB) ResolveAlert(id string) error {
	res, err := db.Exec(`UPDATE alerts SET resolved = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to resolve alert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("alert %s not found", id)
	}
	return nil
}

// RepRow is one recorded repetition.
type RepRow struct {
	SessionID string    `json:"session_id"`
	PersonID  int       `json:"person_id"`
	Exercise  string    `json:"exercise"`
	RepNumber int       `json:"rep_number"`
	MinAngle  float64   `json:"min_angle"`
	FormScore float64   `json:"form_score"`
	Time      time.Time `json:"time"`
}

// InsertRep records one completed repetition.
func (db *DB) InsertRep(r RepRow) error {
	_, err := db.Exec(
		`INSERT INTO exercise_stats (session_id, person_id, exercise, rep_number, min_angle, form_score, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.SessionID, r.PersonID, r.Exercise, r.RepNumber, r.MinAngle, r.FormScore, r.Time.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert rep: %w", err)
	}
	return nil
}

// SessionReps returns the rep rows for a session, oldest first.
func (db *DB) SessionReps(sessionID string) ([]RepRow, error) {
	rows, err := db.Query(
		`SELECT person_id, exercise, rep_number, min_angle, form_score, created_at
		 FROM exercise_stats WHERE session_id = ? ORDER BY created_at`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reps: %w", err)
	}
	defer rows.Close()

	var out []RepRow
	for rows.Next() {
		r := RepRow{SessionID: sessionID}
		var createdMS int64
		if err := rows.Scan(&r.PersonID, &r.Exercise, &r.RepNumber, &r.MinAngle, &r.FormScore, &createdMS); err != nil {
			return nil, err
		}
		r.Time = time.UnixMilli(createdMS)
		out = append(out, r)
	}
	return out, rows.Err()
}

// SetPreference upserts a user preference value.
func (db *DB) SetPreference(category, key, value string) error {
	_, err := db.Exec(
		`INSERT INTO user_preferences (category, key, value, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(category, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		category, key, value, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to set preference: %w", err)
	}
	return nil
}

// GetPreference fetches a preference value; ok=false when unset.
func (db *DB) GetPreference(category, key string) (string, bool, error) {
	var value string
	err := db.QueryRow(
		`SELECT value FROM user_preferences WHERE category = ? AND key = ?`,
		category, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get preference: %w", err)
	}
	return value, true, nil
}

// ModeSummary aggregates sessions of one mode.
type ModeSummary struct {
	Sessions  int `json:"sessions"`
	TotalReps int `json:"total_reps"`
}

// DailyActivity is the session count for one calendar day.
type DailyActivity struct {
	Date     string `json:"date"`
	Sessions int    `json:"sessions"`
}

// Analytics summarizes recent activity.
type Analytics struct {
	Days       int                    `json:"days"`
	ByMode     map[string]ModeSummary `json:"by_mode"`
	AlertTypes map[string]int         `json:"alert_types"`
	Daily      []DailyActivity        `json:"daily"`
}

// AnalyticsSummary aggregates the last N days of sessions and alerts.
func (db *DB) AnalyticsSummary(days int) (Analytics, error) {
	if days <= 0 {
		days = 7
	}
	cutoff := time.Now().AddDate(0, 0, -days).UnixMilli()
	a := Analytics{
		Days:       days,
		ByMode:     make(map[string]ModeSummary),
		AlertTypes: make(map[string]int),
	}

	rows, err := db.Query(
		`SELECT mode, COUNT(*), COALESCE(SUM(total_reps), 0)
		 FROM sessions WHERE start_time >= ? GROUP BY mode`, cutoff)
	if err != nil {
		return Analytics{}, fmt.Errorf("failed to aggregate sessions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var mode string
		var m ModeSummary
		if err := rows.Scan(&mode, &m.Sessions, &m.TotalReps); err != nil {
			return Analytics{}, err
		}
		a.ByMode[mode] = m
	}
	if err := rows.Err(); err != nil {
		return Analytics{}, err
	}

	alertRows, err := db.Query(
		`SELECT type, COUNT(*) FROM alerts WHERE created_at >= ? GROUP BY type`, cutoff)
	if err != nil {
		return Analytics{}, fmt.Errorf("failed to aggregate alerts: %w", err)
	}
	defer alertRows.Close()
	for alertRows.Next() {
		var typ string
		var count int
		if err := alertRows.Scan(&typ, &count); err != nil {
			return Analytics{}, err
		}
		a.AlertTypes[typ] = count
	}
	if err := alertRows.Err(); err != nil {
		return Analytics{}, err
	}

	dayRows, err := db.Query(
		`SELECT date(start_time / 1000, 'unixepoch'), COUNT(*)
		 FROM sessions WHERE start_time >= ?
		 GROUP BY 1 ORDER BY 1`, cutoff)
	if err != nil {
		return Analytics{}, fmt.Errorf("failed to aggregate daily activity: %w", err)
	}
	defer dayRows.Close()
	for dayRows.Next() {
		var d DailyActivity
		if err := dayRows.Scan(&d.Date, &d.Sessions); err != nil {
			return Analytics{}, err
		}
		a.Daily = append(a.Daily, d)
	}
	return a, dayRows.Err()
}

// CleanupOldData deletes sessions older than the cutoff; alerts and rep
// rows cascade. Returns the number of sessions removed.
func (db *DB) CleanupOldData(olderThan time.Time) (int64, error) {
	res, err := db.Exec(`DELETE FROM sessions WHERE start_time < ?`, olderThan.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to clean up old sessions: %w", err)
	}
	return res.RowsAffected()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
