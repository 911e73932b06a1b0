// sessiondump writes a recorded session to CSV or JSON files for offline
// analysis. With no session id it lists recent sessions.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/visiontrack/visiontrack/internal/db"
	"github.com/visiontrack/visiontrack/internal/export"
	"github.com/visiontrack/visiontrack/internal/security"
)

var (
	dbFile     = flag.String("db", "visiontrack.db", "SQLite database file")
	migrations = flag.String("migrations", "./migrations", "Migrations directory")
	sessionID  = flag.String("session", "", "Session id to dump (empty lists recent sessions)")
	outDir     = flag.String("out", ".", "Output directory")
	format     = flag.String("format", "json", "Output format: json or csv")
)

func main() {
	flag.Parse()

	store, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer store.Close()
	if err := store.MigrateUp(*migrations); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	if *sessionID == "" {
		listSessions(store)
		return
	}

	report, err := export.BuildSessionReport(store, *sessionID)
	if err != nil {
		log.Fatalf("failed to load session %s: %v", *sessionID, err)
	}

	name := security.SanitizeFilename(*sessionID)
	path := filepath.Join(*outDir, name+"."+*format)
	if err := security.ValidateExportPath(path); err != nil {
		log.Fatalf("refusing output path: %v", err)
	}

	switch *format {
	case "json":
		err = export.WriteSessionJSON(path, report)
	case "csv":
		err = export.WriteRepsCSV(path, report.Reps)
	default:
		log.Fatalf("unknown format %q", *format)
	}
	if err != nil {
		log.Fatalf("failed to write %s: %v", path, err)
	}
	fmt.Printf("wrote %s (%d reps, %d alerts)\n", path, len(report.Reps), len(report.Alerts))
}

func listSessions(store *db.DB) {
	sessions, err := store.Sessions(20)
	if err != nil {
		log.Fatalf("failed to list sessions: %v", err)
	}
	if len(sessions) == 0 {
		fmt.Println("no sessions recorded")
		os.Exit(0)
	}
	for _, s := range sessions {
		end := "running"
		if s.EndTime != nil {
			end = s.EndTime.Format("2006-01-02 15:04:05")
		}
		fmt.Printf("%-45s %-12s %s .. %-20s reps=%d alerts=%d people=%d\n",
			s.ID, s.Mode, s.StartTime.Format("2006-01-02 15:04:05"), end,
			s.TotalReps, s.TotalAlerts, s.PeopleDetected)
	}
}
