// Package recordstore implements the durable, indexed vulnerability record
// store on SQLite. Free text is matched by token prefix against a
// normalized search column derived from id and description.
package recordstore

import (
	"context"
	"crypto/sha256"
	"database/sql"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lcalzada-xor/cvetrack/internal/core/domain"
	"github.com/lcalzada-xor/cvetrack/internal/core/ports"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

const recordColumns = `cve_id, description,
	cvss2_score, cvss2_severity, cvss30_score, cvss30_severity,
	cvss31_score, cvss31_severity, score, severity, cvss_version,
	published, last_modified, epss, kev, exploit_maturity, status,
	vendors, products, refs`

// Store implements ports.RecordStore using SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New opens (or creates) the record database at dbPath.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open record database: %w", err)
	}

	// WAL keeps searches readable while an ingestion writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// contentHash fingerprints the normalized record content. Two records with
// equal hashes are treated as unchanged by Upsert.
func contentHash(rec *domain.VulnerabilityRecord) string {
	data, _ := json.Marshal(rec)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Upsert writes a record and reports whether it was added, updated or
// unchanged compared to the stored version. For updates the prior stored
// state is returned so the watchlist evaluator can compare before/after.
func (s *Store) Upsert(ctx context.Context, rec *domain.VulnerabilityRecord) (domain.UpsertOutcome, *domain.VulnerabilityRecord, error) {
	hash := contentHash(rec)

	var storedHash string
	err := s.db.QueryRowContext(ctx, "SELECT content_hash FROM records WHERE cve_id = ?", rec.ID).Scan(&storedHash)
	switch {
	case err == sql.ErrNoRows:
		if err := s.write(ctx, rec, hash); err != nil {
			return domain.OutcomeUnchanged, nil, err
		}
		return domain.OutcomeAdded, nil, nil
	case err != nil:
		return domain.OutcomeUnchanged, nil, fmt.Errorf("upsert lookup failed: %w", err)
	}

	if storedHash == hash {
		return domain.OutcomeUnchanged, nil, nil
	}

	prior, err := s.Get(ctx, rec.ID)
	if err != nil {
		return domain.OutcomeUnchanged, nil, err
	}
	if err := s.write(ctx, rec, hash); err != nil {
		return domain.OutcomeUnchanged, nil, err
	}
	return domain.OutcomeUpdated, prior, nil
}

func (s *Store) write(ctx context.Context, rec *domain.VulnerabilityRecord, hash string) error {
	vendors, _ := json.Marshal(rec.Vendors)
	products, _ := json.Marshal(rec.Products)
	refs, _ := json.Marshal(rec.References)

	var epss interface{}
	if rec.EPSS != nil {
		epss = *rec.EPSS
	}

	query := `
		INSERT INTO records (` + recordColumns + `, search_text, content_hash, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(cve_id) DO UPDATE SET
			description = excluded.description,
			search_text = excluded.search_text,
			cvss2_score = excluded.cvss2_score,
			cvss2_severity = excluded.cvss2_severity,
			cvss30_score = excluded.cvss30_score,
			cvss30_severity = excluded.cvss30_severity,
			cvss31_score = excluded.cvss31_score,
			cvss31_severity = excluded.cvss31_severity,
			score = excluded.score,
			severity = excluded.severity,
			cvss_version = excluded.cvss_version,
			published = excluded.published,
			last_modified = excluded.last_modified,
			epss = excluded.epss,
			kev = excluded.kev,
			exploit_maturity = excluded.exploit_maturity,
			status = excluded.status,
			vendors = excluded.vendors,
			products = excluded.products,
			refs = excluded.refs,
			content_hash = excluded.content_hash,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.Description,
		rec.CVSS2Score, rec.CVSS2Severity, rec.CVSS30Score, rec.CVSS30Severity,
		rec.CVSS31Score, rec.CVSS31Severity, rec.Score, rec.Severity, rec.CVSSVersion,
		rec.Published.UTC().Format(time.RFC3339), rec.LastModified.UTC().Format(time.RFC3339),
		epss, boolToInt(rec.KEV), rec.ExploitMaturity, rec.Status,
		string(vendors), string(products), string(refs),
		searchText(rec), hash, s.now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to write record %s: %w", rec.ID, err)
	}
	return nil
}

// Get returns a record by id, or nil when absent.
func (s *Store) Get(ctx context.Context, id string) (*domain.VulnerabilityRecord, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+recordColumns+" FROM records WHERE cve_id = ?", id)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return rec, nil
}

// Tombstone marks a record removed upstream as REJECTED. The content hash is
// cleared so a later upstream re-add is observed as an update.
func (s *Store) Tombstone(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE records SET status = ?, content_hash = '', updated_at = ? WHERE cve_id = ?",
		domain.StatusRejected, s.now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("failed to tombstone %s: %w", id, err)
	}
	return nil
}

// Search answers a filtered query. The returned total reflects the whole
// filtered set regardless of limit/offset.
func (s *Store) Search(ctx context.Context, q *domain.Query) ([]domain.VulnerabilityRecord, int, error) {
	where, args := s.buildWhere(q)

	var total int
	countQuery := "SELECT COUNT(*) FROM records" + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count failed: %w", err)
	}

	query := "SELECT " + recordColumns + " FROM records" + where + orderClause(q)
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", q.Limit, q.Offset)
	} else if q.Offset > 0 {
		query += fmt.Sprintf(" LIMIT -1 OFFSET %d", q.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("search failed: %w", err)
	}
	defer rows.Close()

	var records []domain.VulnerabilityRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, *rec)
	}
	return records, total, rows.Err()
}

// Count returns the filtered set size without fetching rows.
func (s *Store) Count(ctx context.Context, q *domain.Query) (int, error) {
	where, args := s.buildWhere(q)
	var total int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM records"+where, args...).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("count failed: %w", err)
	}
	return total, nil
}

// Stats aggregates dashboard counters over non-rejected records.
func (s *Store) Stats(ctx context.Context) (*ports.RecordStats, error) {
	stats := &ports.RecordStats{BySeverity: make(map[string]int)}

	rows, err := s.db.QueryContext(ctx,
		"SELECT severity, COUNT(*) FROM records WHERE status != ? GROUP BY severity", domain.StatusRejected)
	if err != nil {
		return nil, fmt.Errorf("stats query failed: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var sev string
		var n int
		if err := rows.Scan(&sev, &n); err != nil {
			return nil, err
		}
		stats.BySeverity[sev] = n
		stats.Total += n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM records WHERE kev = 1 AND status != ?", domain.StatusRejected).Scan(&stats.KEVCount)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// searchText normalizes id and description into the stored search column:
// lowercase tokens joined by single spaces, so "CVE-2024-1234: Heap" becomes
// "cve 2024 1234 heap". Token prefix matching then reduces to a LIKE over
// " token" boundaries.
func searchText(rec *domain.VulnerabilityRecord) string {
	return strings.Join(domain.TextTokens(rec.ID+" "+rec.Description), " ")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
