// Package export writes session data to CSV and JSON files for offline
// review.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/visiontrack/visiontrack/internal/alert"
	"github.com/visiontrack/visiontrack/internal/db"
)

// WriteRepsCSV writes one row per recorded repetition to a file.
func WriteRepsCSV(path string, reps []db.RepRow) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer f.Close()
	return WriteReps(f, reps)
}

// WriteReps streams the CSV repetition rows to any writer. The HTTP export
// handler uses this to write directly into the response.
func WriteReps(out io.Writer, reps []db.RepRow) error {
	w := csv.NewWriter(out)
	if err := w.Write([]string{"time", "person_id", "exercise", "rep_number", "min_angle", "form_score"}); err != nil {
		return err
	}
	for _, r := range reps {
		record := []string{
			r.Time.UTC().Format(time.RFC3339),
			strconv.Itoa(r.PersonID),
			r.Exercise,
			strconv.Itoa(r.RepNumber),
			strconv.FormatFloat(r.MinAngle, 'f', 1, 64),
			strconv.FormatFloat(r.FormScore, 'f', 1, 64),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to write CSV: %w", err)
	}
	return nil
}

// SessionReport is the JSON export shape for one session.
type SessionReport struct {
	Session db.Session    `json:"session"`
	Reps    []db.RepRow   `json:"reps"`
	Alerts  []alert.Alert `json:"alerts"`
}

// WriteSessionJSON writes a full session report as indented JSON.
func WriteSessionJSON(path string, report SessionReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write session report: %w", err)
	}
	return nil
}

// BuildSessionReport assembles a report from the store.
func BuildSessionReport(store *db.DB, sessionID string) (SessionReport, error) {
	session, err := store.Session(sessionID)
	if err != nil {
		return SessionReport{}, err
	}
	reps, err := store.SessionReps(sessionID)
	if err != nil {
		return SessionReport{}, err
	}
	alerts, err := store.SessionAlerts(sessionID)
	if err != nil {
		return SessionReport{}, err
	}
	return SessionReport{Session: session, Reps: reps, Alerts: alerts}, nil
}
