package database

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fromscratch/identity/internal/config"
	"github.com/fromscratch/identity/internal/database/migrations"
)

func TestDSN(t *testing.T) {
	cfg := config.Config{DBUser: "app", DBPass: "secret", DBHost: "db", DBPort: "3306", DBName: "identity"}
	dsn := DSN(cfg)
	assert.True(t, strings.HasPrefix(dsn, "app:secret@tcp(db:3306)/identity?"))
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "clientFoundRows=true")

	cfg.DBPass = ""
	assert.True(t, strings.HasPrefix(DSN(cfg), "app@tcp(db:3306)/identity?"))
}

func TestMigrate(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	orig := gooseUp
	defer func() { gooseUp = orig }()

	var gotDir string
	gooseUp = func(_ context.Context, _ *sql.DB, dir string, _ ...goose.OptionsFunc) error {
		gotDir = dir
		return nil
	}
	require.NoError(t, Migrate(context.Background(), db))
	assert.Equal(t, ".", gotDir)

	gooseUp = func(context.Context, *sql.DB, string, ...goose.OptionsFunc) error {
		return errors.New("boom")
	}
	err = Migrate(context.Background(), db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestMigrationsEmbedded(t *testing.T) {
	names, err := fs.Glob(migrations.FS, "*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, names)

	body, err := fs.ReadFile(migrations.FS, names[0])
	require.NoError(t, err)
	sql := string(body)
	for _, want := range []string{"-- +goose Up", "-- +goose Down", "uq_users_email", "uq_users_provider", "uq_payments_external", "uq_subscriptions_active_user"} {
		assert.Contains(t, sql, want)
	}
}
