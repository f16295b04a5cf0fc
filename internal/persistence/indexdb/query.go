package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"

	"haulplan.ai/internal/sim/world"
)

type PostingRow struct {
	PostingID int
	Region    int
	Status    string
	Tick      uint64
	Removed   bool
	Records   []world.RecordState
}

// OpenReadOnly opens an index for queries without starting the writer.
func OpenReadOnly(path string) (*sql.DB, error) {
	return sql.Open("sqlite", "file:"+path+"?mode=ro")
}

// Postings lists indexed postings by id. An empty status matches all.
func Postings(ctx context.Context, db *sql.DB, status string) ([]PostingRow, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT posting_id,region,status,tick,removed,records_json FROM postings
		 WHERE ?='' OR status=? ORDER BY posting_id`, status, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PostingRow
	for rows.Next() {
		var (
			r       PostingRow
			tick    int64
			removed int
			recs    string
		)
		if err := rows.Scan(&r.PostingID, &r.Region, &r.Status, &tick, &removed, &recs); err != nil {
			return nil, err
		}
		r.Tick = uint64(tick)
		r.Removed = removed != 0
		if err := json.Unmarshal([]byte(recs), &r.Records); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Audits returns a posting's audit trail in tick order.
func Audits(ctx context.Context, db *sql.DB, postingID int) ([]world.AuditEntry, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT raw_json FROM audits WHERE posting_id=? ORDER BY tick, seq`, postingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []world.AuditEntry
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var e world.AuditEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
