package storage

import (
	"fmt"
	"path"
	"regexp"
	"time"
)

var tableNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// BuildDatasetObjectPath returns the object key for a registered dataset's
// parquet file. Keys are namespaced by table name and stamped with the
// registration time so a re-registered table never overwrites an object a
// running query may still be reading.
func BuildDatasetObjectPath(tableName string, registeredAt time.Time) (string, error) {
	if !tableNamePattern.MatchString(tableName) {
		return "", fmt.Errorf("invalid table name: %q", tableName)
	}
	ts := registeredAt.UTC()
	return path.Join(
		"datasets",
		tableName,
		fmt.Sprintf("%04d%02d%02dT%02d%02d%02d-data.parquet", ts.Year(), ts.Month(), ts.Day(), ts.Hour(), ts.Minute(), ts.Second()),
	), nil
}
