// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// EducationEntry is one education or qualification record pulled from a
// biography. Any field may be absent; an entry with all three fields
// empty is dropped before it reaches a Profile.
type EducationEntry struct {
	// Institution is the school or academy name, if one was found.
	Institution *string `json:"institution" yaml:"institution"`

	// Year is a four-digit year associated with the entry.
	Year *int `json:"year" yaml:"year"`

	// Qualification is the qualification phrase (e.g. "pilot-engineer").
	Qualification *string `json:"qualification" yaml:"qualification"`
}

// IsEmpty reports whether no field of the entry was resolved.
func (e EducationEntry) IsEmpty() bool {
	return e.Institution == nil && e.Year == nil && e.Qualification == nil
}

// Profile holds the structured fields extracted from one biography.
// List fields are always non-nil so they serialize as JSON arrays;
// optional scalars serialize as JSON null when absent.
type Profile struct {
	// Degrees are synthesized degree strings, deduplicated in order of
	// first occurrence (e.g. "pilot-engineer (Moscow Aviation Institute, 1989)").
	Degrees []string `json:"degrees" yaml:"degrees"`

	// Education lists the education entries found in narrative bullets.
	Education []EducationEntry `json:"education" yaml:"education"`

	// Occupations come from the "Occupation(s):" label line, split on commas.
	Occupations []string `json:"occupations" yaml:"occupations"`

	// TimeInSpace is the "Time in space:" label value, verbatim.
	TimeInSpace *string `json:"time_in_space" yaml:"time_in_space"`

	// Interests are hobby phrases following the word "enjoys".
	Interests []string `json:"interests" yaml:"interests"`

	// Nationality comes from the "Nationality:" label line.
	Nationality *string `json:"nationality" yaml:"nationality"`

	// Age is the explicit "(age N)" annotation when present, otherwise
	// computed from the birth date.
	Age *int `json:"age" yaml:"age"`
}

// NewProfile returns a Profile with all list fields initialized, so a
// profile with no matches still serializes with empty arrays.
func NewProfile() *Profile {
	return &Profile{
		Degrees:     []string{},
		Education:   []EducationEntry{},
		Occupations: []string{},
		Interests:   []string{},
	}
}

// Record is one line of the extraction JSONL output: either a profile
// or a per-person error, never both. Failed extractions carry the error
// text so a batch can be triaged later without re-running.
type Record struct {
	// Name is the person's normalized name (or directory-derived fallback).
	Name string `json:"name" yaml:"name"`

	// Profile is the extracted profile; nil when extraction failed.
	*Profile `yaml:",inline"`

	// Error describes an extraction failure for this person.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}
