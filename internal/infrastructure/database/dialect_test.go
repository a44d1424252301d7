package database

import (
	"database/sql/driver"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialectFor(t *testing.T) {
	d, err := DialectFor("postgres")
	require.NoError(t, err)
	assert.Equal(t, DialectPostgres, d)
	assert.Equal(t, "pgx", d.driverName())

	d, err = DialectFor("sqlite")
	require.NoError(t, err)
	assert.Equal(t, DialectSQLite, d)
	assert.Equal(t, "sqlite", d.driverName())

	_, err = DialectFor("mongodb")
	assert.Error(t, err)
}

func TestDialect_Placeholder(t *testing.T) {
	assert.Equal(t, "$3", DialectPostgres.Placeholder(3))
	assert.Equal(t, "?", DialectSQLite.Placeholder(3))
}

func TestDialect_TimeArg(t *testing.T) {
	loc := time.FixedZone("WIB", 7*60*60)
	ts := time.Date(2024, 5, 2, 7, 30, 0, int(250*time.Millisecond), loc)

	assert.Equal(t, "2024-05-02 00:30:00.250", DialectSQLite.TimeArg(ts))
	assert.Equal(t, ts.UTC(), DialectPostgres.TimeArg(ts))
}

func TestScanTime(t *testing.T) {
	want := time.Date(2024, 5, 2, 0, 30, 0, int(250*time.Millisecond), time.UTC)

	tests := []struct {
		name string
		src  any
	}{
		{"native", want},
		{"sqlite text", "2024-05-02 00:30:00.250"},
		{"bytes", []byte("2024-05-02 00:30:00.250")},
		{"rfc3339", "2024-05-02T00:30:00.25Z"},
		{"offset", "2024-05-02T07:30:00.25+07:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var st scanTime
			require.NoError(t, st.Scan(tt.src))
			assert.True(t, want.Equal(st.Time), "got %s", st.Time)
		})
	}

	t.Run("invalid", func(t *testing.T) {
		var st scanTime
		assert.Error(t, st.Scan("yesterday"))
		assert.Error(t, st.Scan(42))
	})
}

func TestDialect_Lower(t *testing.T) {
	assert.Equal(t, "LOWER(level)", DialectPostgres.Lower("level"))
	assert.Equal(t, "logquery_lower(level)", DialectSQLite.Lower("level"))
}

func TestUnicodeLower(t *testing.T) {
	tests := []struct {
		in   driver.Value
		want driver.Value
	}{
		{"SYSTÈME", "système"},
		{[]byte("Échec"), "échec"},
		{nil, nil},
		{int64(7), int64(7)},
	}

	for _, tt := range tests {
		got, err := unicodeLower(nil, []driver.Value{tt.in})
		assert.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}
