// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package roster

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Revin, Sergey", "Sergey Revin"},
		{"Revin, Sergey Nikolayevich", "Sergey Nikolayevich Revin"},
		{"Sergey Revin", "Sergey Revin"},
		{"  Sergey Revin  ", "Sergey Revin"},
		{"Revin,", "Revin,"},
		{", Sergey", ", Sergey"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := NormalizeName(tt.in); got != tt.want {
				t.Errorf("NormalizeName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Sergey Revin", "Sergey_Revin"},
		{`a/b\c*d?e:f"g<h>i|j`, "abcdefghij"},
		{"  padded  ", "padded"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Sanitize(tt.in); got != tt.want {
			t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParse(t *testing.T) {
	csvData := `Profile.ID,Profile.Name,Profile.Nationality
101,"Revin, Sergey",Russian
102,Jane Doe,Canadian
103,,Unknown
`
	people, err := Parse(strings.NewReader(csvData))
	require.NoError(t, err)
	require.Len(t, people, 2)

	assert.Equal(t, "101", people[0].ID)
	assert.Equal(t, "Revin, Sergey", people[0].RawName)
	assert.Equal(t, "Sergey Revin", people[0].Name)

	assert.Equal(t, "102", people[1].ID)
	assert.Equal(t, "Jane Doe", people[1].Name)
}

func TestParse_FallbackIDFromName(t *testing.T) {
	people, err := Parse(strings.NewReader("Name\nSergey Revin\n"))
	require.NoError(t, err)
	require.Len(t, people, 1)
	assert.Equal(t, "Sergey_Revin", people[0].ID)
}

func TestParse_MissingNameColumn(t *testing.T) {
	_, err := Parse(strings.NewReader("Foo,Bar\n1,2\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no name column")
}
