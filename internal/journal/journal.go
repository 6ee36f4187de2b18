// Package journal keeps one SQLite row per control cycle so the recent
// behaviour of the controller can be inspected after the fact.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sweeney/boiler-controller/internal/logic"
)

const timeLayout = "2006-01-02 15:04:05.000"

const createTableSQL = `
CREATE TABLE IF NOT EXISTS cycles (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    cycle INTEGER NOT NULL,
    timestamp TEXT NOT NULL,
    mode TEXT NOT NULL,
    water_level REAL NOT NULL,
    steam_level REAL NOT NULL,
    estimated_level REAL,
    open_pumps INTEGER NOT NULL,
    valve_open INTEGER NOT NULL,
    inbound INTEGER NOT NULL,
    outbound TEXT NOT NULL
);`

// Record is one journaled cycle.
type Record struct {
	RunID          string    `json:"run_id"`
	Cycle          int       `json:"cycle"`
	Time           time.Time `json:"time"`
	Mode           string    `json:"mode"`
	WaterLevel     float64   `json:"water_level"`
	SteamLevel     float64   `json:"steam_level"`
	EstimatedLevel *float64  `json:"estimated_level,omitempty"`
	OpenPumps      int       `json:"open_pumps"`
	ValveOpen      bool      `json:"valve_open"`
	Inbound        int       `json:"inbound"`
	Outbound       []string  `json:"outbound"`
}

// FromCycle builds the record for a cycle that ended in snap.
func FromCycle(runID string, at time.Time, snap logic.Snapshot, in, out []logic.Message) Record {
	r := Record{
		RunID:      runID,
		Cycle:      snap.Counts.Cycles,
		Time:       at,
		Mode:       snap.Mode.String(),
		WaterLevel: snap.WaterLevel,
		SteamLevel: snap.SteamLevel,
		OpenPumps:  snap.OpenPumps(),
		ValveOpen:  snap.ValveOpen,
		Inbound:    len(in),
		Outbound:   make([]string, len(out)),
	}
	if snap.Mode == logic.ModeRescue {
		est := snap.EstimatedLevel
		r.EstimatedLevel = &est
	}
	for i, m := range out {
		r.Outbound[i] = m.String()
	}
	return r
}

// Journal writes cycle records to a SQLite database.
type Journal struct {
	db *sql.DB
}

// Open opens or creates the database at path and ensures the schema exists.
// Use ":memory:" for a throwaway journal.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create journal table: %w", err)
	}
	return &Journal{db: db}, nil
}

// Record appends one cycle.
func (j *Journal) Record(ctx context.Context, r Record) error {
	outbound, err := json.Marshal(r.Outbound)
	if err != nil {
		return fmt.Errorf("encode outbound: %w", err)
	}

	var est sql.NullFloat64
	if r.EstimatedLevel != nil {
		est = sql.NullFloat64{Float64: *r.EstimatedLevel, Valid: true}
	}

	_, err = j.db.ExecContext(ctx,
		`INSERT INTO cycles(run_id, cycle, timestamp, mode, water_level, steam_level, estimated_level, open_pumps, valve_open, inbound, outbound)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Cycle, r.Time.UTC().Format(timeLayout), r.Mode, r.WaterLevel, r.SteamLevel,
		est, r.OpenPumps, r.ValveOpen, r.Inbound, string(outbound))
	if err != nil {
		return fmt.Errorf("insert cycle %d: %w", r.Cycle, err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Record, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT run_id, cycle, timestamp, mode, water_level, steam_level, estimated_level, open_pumps, valve_open, inbound, outbound
		 FROM cycles ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query cycles: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var (
			r        Record
			ts       string
			est      sql.NullFloat64
			outbound string
		)
		if err := rows.Scan(&r.RunID, &r.Cycle, &ts, &r.Mode, &r.WaterLevel, &r.SteamLevel,
			&est, &r.OpenPumps, &r.ValveOpen, &r.Inbound, &outbound); err != nil {
			return nil, fmt.Errorf("scan cycle: %w", err)
		}
		if r.Time, err = time.Parse(timeLayout, ts); err != nil {
			return nil, fmt.Errorf("parse timestamp %q: %w", ts, err)
		}
		if est.Valid {
			v := est.Float64
			r.EstimatedLevel = &v
		}
		if err := json.Unmarshal([]byte(outbound), &r.Outbound); err != nil {
			return nil, fmt.Errorf("decode outbound: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Count returns the number of journaled cycles.
func (j *Journal) Count(ctx context.Context) (int, error) {
	var n int
	if err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cycles`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count cycles: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}
