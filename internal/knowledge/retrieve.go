// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/CDCThjnk/bioscrape/pkg/types"
)

// QueryOptions holds parameters for knowledge base queries.
type QueryOptions struct {
	// Query is the FTS5 full-text search string over names,
	// occupations, interests, degrees, and nationality.
	Query string

	// Nationality filters by exact nationality, case-insensitive.
	Nationality string

	// Occupation filters people whose occupation list contains the
	// value, case-insensitive.
	Occupation string

	// MaxResults limits result count. Zero uses the store default.
	MaxResults int
}

// IsEmpty reports whether the query has no search terms or filters.
func (q QueryOptions) IsEmpty() bool {
	return q.Query == "" && q.Nationality == "" && q.Occupation == ""
}

// QueryResult is a stored person with their profile, if one was
// extracted.
type QueryResult struct {
	PersonID string         `json:"person_id" yaml:"person_id"`
	Name     string         `json:"name" yaml:"name"`
	Error    string         `json:"error,omitempty" yaml:"error,omitempty"`
	Profile  *types.Profile `json:"profile,omitempty" yaml:"profile,omitempty"`
}

// Retrieve queries the knowledge base with optional full-text search
// and structured filters. Full-text queries are ranked by relevance;
// structured-only queries are sorted by name. People with failed
// extractions match only when no profile filter excludes them.
func (s *Store) Retrieve(ctx context.Context, opts QueryOptions) ([]QueryResult, error) {
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = s.maxResults
	}

	var (
		qb     strings.Builder
		args   []any
		useFTS = opts.Query != ""
	)

	if useFTS {
		qb.WriteString(
			`SELECT pe.id, pe.name, pe.error,
				pr.age, pr.nationality, pr.time_in_space,
				pr.occupations, pr.interests, pr.degrees, pr.education
			FROM profiles_fts
			JOIN profiles pr ON pr.rowid = profiles_fts.rowid
			JOIN people pe ON pe.id = pr.person_id
			WHERE profiles_fts MATCH ?`)
		args = append(args, opts.Query)
	} else {
		qb.WriteString(
			`SELECT pe.id, pe.name, pe.error,
				pr.age, pr.nationality, pr.time_in_space,
				pr.occupations, pr.interests, pr.degrees, pr.education
			FROM people pe
			LEFT JOIN profiles pr ON pr.person_id = pe.id
			WHERE 1=1`)
	}

	if opts.Nationality != "" {
		qb.WriteString(` AND pr.nationality = ? COLLATE NOCASE`)
		args = append(args, opts.Nationality)
	}

	if opts.Occupation != "" {
		qb.WriteString(` AND EXISTS (SELECT 1 FROM json_each(pr.occupations) WHERE value = ? COLLATE NOCASE)`)
		args = append(args, opts.Occupation)
	}

	if useFTS {
		qb.WriteString(` ORDER BY profiles_fts.rank`)
	} else {
		qb.WriteString(` ORDER BY pe.name`)
	}

	qb.WriteString(` LIMIT ?`)
	args = append(args, maxResults)

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying knowledge base: %w", err)
	}
	defer rows.Close()

	var results []QueryResult
	for rows.Next() {
		qr, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, qr)
	}

	return results, rows.Err()
}

func scanResult(rows *sql.Rows) (QueryResult, error) {
	var (
		qr          QueryResult
		errText     sql.NullString
		age         sql.NullInt64
		nationality sql.NullString
		timeInSpace sql.NullString
		occJSON     sql.NullString
		intJSON     sql.NullString
		degJSON     sql.NullString
		eduJSON     sql.NullString
	)

	if err := rows.Scan(
		&qr.PersonID, &qr.Name, &errText,
		&age, &nationality, &timeInSpace,
		&occJSON, &intJSON, &degJSON, &eduJSON,
	); err != nil {
		return qr, fmt.Errorf("scanning row: %w", err)
	}

	if errText.Valid {
		qr.Error = errText.String
	}

	// A person without a profile row keeps Profile nil.
	if !occJSON.Valid {
		return qr, nil
	}

	p := types.NewProfile()
	if age.Valid {
		v := int(age.Int64)
		p.Age = &v
	}
	if nationality.Valid {
		p.Nationality = &nationality.String
	}
	if timeInSpace.Valid {
		p.TimeInSpace = &timeInSpace.String
	}
	json.Unmarshal([]byte(occJSON.String), &p.Occupations)
	if intJSON.Valid {
		json.Unmarshal([]byte(intJSON.String), &p.Interests)
	}
	if degJSON.Valid {
		json.Unmarshal([]byte(degJSON.String), &p.Degrees)
	}
	if eduJSON.Valid {
		json.Unmarshal([]byte(eduJSON.String), &p.Education)
	}
	qr.Profile = p
	return qr, nil
}

// Source returns the biography text a stored person's profile was
// extracted from, read from pagesDir/[personID]/biography.txt.
func (s *Store) Source(ctx context.Context, personID string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM people WHERE id = ? OR name = ?`, personID, personID,
	).Scan(&id)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", fmt.Errorf("person %s not found", personID)
		}
		return "", fmt.Errorf("looking up person: %w", err)
	}

	bioPath := filepath.Join(s.pagesDir, id, "biography.txt")
	content, err := os.ReadFile(bioPath)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", bioPath, err)
	}

	return strings.TrimSpace(string(content)), nil
}
