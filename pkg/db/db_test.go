package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/smallbiznis/directory/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestIsDuplicateKeyErr(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"gorm sentinel", fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey), true},
		{"postgres", errors.New(`ERROR: duplicate key value violates unique constraint "business_hours_day"`), true},
		{"mysql", errors.New("Error 1062 (23000): Duplicate entry"), true},
		{"sqlite", errors.New("UNIQUE constraint failed: business_hours.business_id"), true},
		{"other", errors.New("connection refused"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsDuplicateKeyErr(tc.err))
		})
	}
}

func TestDialect(t *testing.T) {
	for _, kind := range []string{"postgres", "POSTGRESQL", "mysql", "sqlite"} {
		d, err := Dialect(config.Config{DBType: kind, DBName: "directory"})
		require.NoError(t, err, kind)
		assert.NotNil(t, d)
	}

	_, err := Dialect(config.Config{DBType: "oracle"})
	assert.Error(t, err)
}

func TestPostgresDSN(t *testing.T) {
	dsn := postgresDSN(config.Config{
		DBHost: "db", DBPort: "5432", DBUser: "u", DBPassword: "p", DBName: "directory", DBSSLMode: "disable",
	})
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=directory sslmode=disable TimeZone=UTC", dsn)
}
