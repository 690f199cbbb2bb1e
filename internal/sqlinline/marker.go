// Package sqlinline holds every SQL statement the job store issues. Each
// statement opens with a "--sql <uuid>" audit marker that is logged in
// place of the query text.
package sqlinline

import (
	"errors"
	"regexp"
	"strings"
)

var markerPattern = regexp.MustCompile(`^--sql ([0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12})$`)

// ErrMarker is returned for a statement whose first line is not a valid marker.
var ErrMarker = errors.New("sql marker missing or invalid")

// Split returns the marker id of query and the statement that follows it.
func Split(query string) (id, statement string, err error) {
	trimmed := strings.TrimSpace(query)
	line, rest, _ := strings.Cut(trimmed, "\n")
	id, ok := MarkerID(line)
	if !ok {
		return "", "", ErrMarker
	}
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return "", "", errors.New("sql statement is empty")
	}
	return id, rest, nil
}

// MarkerID reports whether line is a marker and returns its id.
func MarkerID(line string) (string, bool) {
	m := markerPattern.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Statements lists the job store statements by name.
func Statements() map[string]string {
	return map[string]string{
		"QJobsCreateTable":     QJobsCreateTable,
		"QJobsInsert":          QJobsInsert,
		"QJobsGet":             QJobsGet,
		"QJobsUpdateVersioned": QJobsUpdateVersioned,
		"QJobsVersion":         QJobsVersion,
		"QJobsListByState":     QJobsListByState,
		"QJobsDelete":          QJobsDelete,
	}
}
