package database

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
	"time"

	"modernc.org/sqlite"

	"github.com/mutugading/logquery/internal/infrastructure/config"
)

// Dialect captures the SQL differences between the supported engines.
type Dialect int

// Supported dialects.
const (
	DialectPostgres Dialect = iota
	DialectSQLite
)

// sqliteTimeLayout is fixed-width so that text comparison orders like time.
const sqliteTimeLayout = "2006-01-02 15:04:05.000"

// sqliteLowerFunc folds case with Unicode rules. SQLite's built-in LOWER
// only folds ASCII.
const sqliteLowerFunc = "logquery_lower"

func init() {
	sqlite.MustRegisterDeterministicScalarFunction(sqliteLowerFunc, 1, unicodeLower)
}

func unicodeLower(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case nil:
		return nil, nil
	case string:
		return strings.ToLower(v), nil
	case []byte:
		return strings.ToLower(string(v)), nil
	default:
		return v, nil
	}
}

// DialectFor maps a configured driver to its dialect.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case config.DriverPostgres:
		return DialectPostgres, nil
	case config.DriverSQLite:
		return DialectSQLite, nil
	default:
		return 0, fmt.Errorf("unsupported database driver %q", driver)
	}
}

func (d Dialect) String() string {
	if d == DialectSQLite {
		return config.DriverSQLite
	}
	return config.DriverPostgres
}

// driverName is the database/sql driver registered for the dialect.
func (d Dialect) driverName() string {
	if d == DialectSQLite {
		return "sqlite"
	}
	return "pgx"
}

// Placeholder returns the bind parameter for the n-th (1-based) argument.
func (d Dialect) Placeholder(n int) string {
	if d == DialectSQLite {
		return "?"
	}
	return "$" + strconv.Itoa(n)
}

// Lower returns an expression folding column to lower case with the same
// rules as strings.ToLower.
func (d Dialect) Lower(column string) string {
	if d == DialectSQLite {
		return sqliteLowerFunc + "(" + column + ")"
	}
	return "LOWER(" + column + ")"
}

// TimeArg converts t into the value bound for timestamp comparisons.
// SQLite stores timestamps as UTC text.
func (d Dialect) TimeArg(t time.Time) any {
	if d == DialectSQLite {
		return FormatSQLiteTime(t)
	}
	return t.UTC()
}

// FormatSQLiteTime renders t the way timestamps are stored in SQLite.
func FormatSQLiteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

// timeLayouts are the text encodings accepted when a driver returns a
// timestamp as text.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// scanTime accepts timestamps returned either natively or as text.
type scanTime struct {
	Time time.Time
}

// Scan implements sql.Scanner.
func (s *scanTime) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		s.Time = v.UTC()
		return nil
	case string:
		return s.parse(v)
	case []byte:
		return s.parse(string(v))
	default:
		return fmt.Errorf("cannot scan %T into timestamp", src)
	}
}

func (s *scanTime) parse(v string) error {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			s.Time = t.UTC()
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", v)
}
