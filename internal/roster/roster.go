// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package roster loads the input CSV of people and normalizes names and
// identifiers for the scrape stage.
package roster

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/CDCThjnk/bioscrape/pkg/types"
)

// nameColumns are the header names checked, in order, for the person's name.
var nameColumns = []string{"Profile.Name", "Name", "FullName"}

// idColumns are the header names checked, in order, for a stable identifier.
var idColumns = []string{
	"Profile.ID", "Profile.Id", "ProfileId", "ID", "Id", "id",
	"AstronautID", "Astronaut.Id", "PersonID",
}

// unsafeChars matches characters stripped from filesystem identifiers.
var unsafeChars = regexp.MustCompile(`[\\/*?:"<>|]`)

// Load reads a roster CSV from path. Rows with an empty name are
// dropped. The CSV must contain one of the recognized name columns.
func Load(path string) ([]types.Person, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening roster %s: %w", path, err)
	}
	defer f.Close()

	people, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parsing roster %s: %w", path, err)
	}
	return people, nil
}

// Parse reads roster rows from r. The first record is the header.
func Parse(r io.Reader) ([]types.Person, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(h)] = i
	}

	nameCol := -1
	for _, c := range nameColumns {
		if i, ok := cols[c]; ok {
			nameCol = i
			break
		}
	}
	if nameCol < 0 {
		return nil, fmt.Errorf("no name column found; expected one of %v", nameColumns)
	}

	idCol := -1
	for _, c := range idColumns {
		if i, ok := cols[c]; ok {
			idCol = i
			break
		}
	}

	var people []types.Person
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading row: %w", err)
		}

		rawName := field(rec, nameCol)
		name := NormalizeName(rawName)
		if name == "" {
			continue
		}

		id := ""
		if idCol >= 0 {
			id = field(rec, idCol)
		}
		if id == "" {
			id = name
		}
		id = Sanitize(id)
		if id == "" {
			id = "unknown"
		}

		people = append(people, types.Person{
			ID:      id,
			RawName: rawName,
			Name:    name,
		})
	}

	return people, nil
}

func field(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

// NormalizeName converts "Last, First Middle" to "First Middle Last"
// when a comma is present; otherwise it returns the trimmed input.
func NormalizeName(name string) string {
	name = strings.TrimSpace(name)
	last, first, found := strings.Cut(name, ",")
	if !found {
		return name
	}
	last = strings.TrimSpace(last)
	first = strings.TrimSpace(first)
	if first == "" || last == "" {
		return name
	}
	return first + " " + last
}

// Sanitize strips characters that are unsafe in directory names. Spaces
// are replaced with underscores.
func Sanitize(s string) string {
	s = unsafeChars.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	return strings.ReplaceAll(s, " ", "_")
}
