// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package extract turns raw biography text into structured profiles.
// fields.go is the regex backend: a set of independent matchers, each
// returning an optional value, composed by ordered fallback.
package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/CDCThjnk/bioscrape/pkg/types"
)

// months is the alternation of English month names used by the textual
// date patterns.
const months = "January|February|March|April|May|June|July|August|September|October|November|December"

// Field label and narrative patterns. Label lines may carry leading
// bullet dashes ("- Nationality: Russian") or appear bare.
var (
	// isoBornRe matches an ISO date in parentheses after a "Born:" label,
	// e.g. "Born: (1966-01-12) January 12, 1966".
	isoBornRe = regexp.MustCompile(`(?i)Born:\s*\(\s*(\d{4}-\d{2}-\d{2})\s*\)`)

	// monthDayYearRe matches "January 12, 1966"; month names match
	// regardless of case.
	monthDayYearRe = regexp.MustCompile(`(?i)(?:` + months + `)\s+\d{1,2},\s+\d{4}`)

	// dayMonthYearRe matches "12 January 1966".
	dayMonthYearRe = regexp.MustCompile(`(?i)\d{1,2}\s+(?:` + months + `)\s+\d{4}`)

	// explicitAgeRe matches an "(age 59)" annotation.
	explicitAgeRe = regexp.MustCompile(`(?i)\(age\s*([0-9]{1,3})\)`)

	// occupationRe matches the "Occupation(s):" label line.
	occupationRe = regexp.MustCompile(`(?im)^[ \t-]*Occupation\(s\):\s*([^\n]+?)\s*$`)

	// nationalityRe matches the "Nationality:" label line.
	nationalityRe = regexp.MustCompile(`(?im)^[ \t-]*Nationality:\s*([A-Za-z][A-Za-z \-]*?)\s*$`)

	// timeInSpaceRe matches the "Time in space:" label line.
	timeInSpaceRe = regexp.MustCompile(`(?im)^[ \t-]*Time in space:\s*([^\n]+?)\s*$`)

	// enjoysRe captures the free text after "enjoys" up to the sentence end.
	enjoysRe = regexp.MustCompile(`(?i)\benjoys\s+([^.\n]+)`)

	// interestSplitRe splits an interest list on commas and the word "and"
	// without breaking multi-word phrases like "water skiing".
	interestSplitRe = regexp.MustCompile(`,|\band\b`)
)

// Degree and education patterns.
var (
	// eduTriggerRe flags narrative bullet lines that likely describe education.
	eduTriggerRe = regexp.MustCompile(`(?i)graduated|post-graduate|qualified as`)

	// bulletRe matches the leading dash of a narrative bullet line.
	bulletRe = regexp.MustCompile(`^\s*-\s*`)

	// institutionFromRe captures a capitalized institution phrase after "from the".
	institutionFromRe = regexp.MustCompile(`from the ([A-Z][A-Za-z0-9 .\-()']+)`)

	// institutionAtRe is the fallback for "at the".
	institutionAtRe = regexp.MustCompile(`at the ([A-Z][A-Za-z0-9 .\-()']+)`)

	// eduYearRe captures a four-digit number after "in" or a comma. The
	// trailing group rejects longer digit runs. Any 4-digit number is
	// accepted; range validation is deliberately not applied.
	eduYearRe = regexp.MustCompile(`(?i)(?:in|,)\s*(\d{4})(?:[^0-9]|$)`)

	// qualificationRe captures the phrase after "qualified as [a/an]" up
	// to sentence-ending punctuation or a comma.
	qualificationRe = regexp.MustCompile(`(?i)qualified as (?:an? )?([A-Za-z \-]+?)(?:\.|,|$)`)

	// candidateDegreeRe matches standalone "Candidate of <Field> (<year>)" phrases.
	candidateDegreeRe = regexp.MustCompile(`(?i)Candidate of [A-Za-z ]+ \(\d{4}\)`)

	// spaceRunRe collapses whitespace runs when normalizing degree strings.
	spaceRunRe = regexp.MustCompile(`\s+`)
)

// timeNow returns the reference date for computed ages. Tests override
// this to make the birth-date path deterministic.
var timeNow = time.Now

// ParseProfile extracts structured fields from raw biography text. It is
// a pure function of its input: every matcher degrades to nil or an
// empty list when its pattern is absent, and no failure is fatal.
func ParseProfile(text string) *types.Profile {
	p := types.NewProfile()

	if line, ok := firstMatch(occupationRe, text); ok {
		for _, o := range strings.Split(line, ",") {
			if o = strings.TrimSpace(o); o != "" {
				p.Occupations = append(p.Occupations, o)
			}
		}
	}

	if v, ok := firstMatch(nationalityRe, text); ok {
		p.Nationality = &v
	}

	if v, ok := firstMatch(timeInSpaceRe, text); ok {
		p.TimeInSpace = &v
	}

	p.Interests = parseInterests(text)
	p.Degrees, p.Education = parseDegreesAndEducation(text)

	birth, haveBirth := parseBirthDate(text)
	if age, ok := parseAge(text, birth, haveBirth); ok {
		p.Age = &age
	}

	return p
}

// firstMatch returns the trimmed first capture group of the first match.
func firstMatch(re *regexp.Regexp, text string) (string, bool) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

// parseBirthDate tries the birth date patterns in priority order: ISO in
// parentheses after "Born:", then "Month D, YYYY", then "D Month YYYY".
// A pattern that matches but fails to parse falls through to the next.
func parseBirthDate(text string) (time.Time, bool) {
	if iso, ok := firstMatch(isoBornRe, text); ok {
		if t, err := time.Parse("2006-01-02", iso); err == nil {
			return t, true
		}
	}
	if m := monthDayYearRe.FindString(text); m != "" {
		if t, err := time.Parse("January 2, 2006", m); err == nil {
			return t, true
		}
	}
	if m := dayMonthYearRe.FindString(text); m != "" {
		if t, err := time.Parse("2 January 2006", m); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseAge prefers an explicit "(age N)" annotation, then falls back to
// whole-years arithmetic from the birth date.
func parseAge(text string, birth time.Time, haveBirth bool) (int, bool) {
	if v, ok := firstMatch(explicitAgeRe, text); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n, true
		}
	}
	if haveBirth {
		return ageAt(birth, timeNow()), true
	}
	return 0, false
}

// ageAt computes whole years between birth and today, subtracting one
// when today's month/day falls before the birthday.
func ageAt(birth, today time.Time) int {
	years := today.Year() - birth.Year()
	if today.Month() < birth.Month() ||
		(today.Month() == birth.Month() && today.Day() < birth.Day()) {
		years--
	}
	return years
}

// parseInterests locates the first "enjoys ..." clause and splits it into
// trimmed phrases on commas and the word "and".
func parseInterests(text string) []string {
	clause, ok := firstMatch(enjoysRe, text)
	if !ok {
		return []string{}
	}

	interests := []string{}
	for _, part := range interestSplitRe.Split(clause, -1) {
		part = strings.Trim(part, " .;:")
		if part != "" {
			interests = append(interests, part)
		}
	}
	return interests
}

// parseDegreesAndEducation scans narrative bullet lines for education
// trigger phrases and builds both the education entries and the
// synthesized degree strings. Candidate lines are deduplicated before
// processing so identical bullets are not parsed twice.
func parseDegreesAndEducation(text string) ([]string, []types.EducationEntry) {
	degrees := []string{}
	education := []types.EducationEntry{}

	seen := make(map[string]bool)
	for _, line := range strings.Split(text, "\n") {
		if !bulletRe.MatchString(line) || !eduTriggerRe.MatchString(line) {
			continue
		}
		if seen[line] {
			continue
		}
		seen[line] = true

		entry, degree := parseEducationLine(line)
		if !entry.IsEmpty() {
			education = append(education, entry)
		}
		if degree != "" {
			degrees = append(degrees, degree)
		}
	}

	// Standalone degree phrases outside bullet lines.
	degrees = append(degrees, candidateDegreeRe.FindAllString(text, -1)...)

	return dedupeDegrees(degrees), education
}

// parseEducationLine extracts institution, year, and qualification from
// one candidate line and synthesizes a degree string from whichever
// parts resolved.
func parseEducationLine(line string) (types.EducationEntry, string) {
	var entry types.EducationEntry

	inst, ok := firstMatch(institutionFromRe, line)
	if !ok {
		inst, ok = firstMatch(institutionAtRe, line)
	}
	if ok {
		entry.Institution = &inst
	}

	if y, ok := firstMatch(eduYearRe, line); ok {
		if n, err := strconv.Atoi(y); err == nil {
			entry.Year = &n
		}
	}

	qual, haveQual := firstMatch(qualificationRe, line)
	if haveQual {
		entry.Qualification = &qual
	}

	var degree string
	switch {
	case !haveQual:
	case entry.Institution != nil && entry.Year != nil:
		degree = qual + " (" + *entry.Institution + ", " + strconv.Itoa(*entry.Year) + ")"
	case entry.Institution != nil:
		degree = qual + " (" + *entry.Institution + ")"
	case entry.Year != nil:
		degree = qual + " (" + strconv.Itoa(*entry.Year) + ")"
	default:
		degree = qual
	}

	return entry, degree
}

// dedupeDegrees normalizes whitespace and removes duplicates preserving
// first-occurrence order.
func dedupeDegrees(degrees []string) []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, d := range degrees {
		d = strings.TrimSpace(spaceRunRe.ReplaceAllString(d, " "))
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	return out
}
