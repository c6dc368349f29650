package runner

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/cohortsignal/engine/configs"
	"github.com/cohortsignal/engine/internal/store"
)

func newMockStore(t *testing.T) (*store.Store, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{})
	require.NoError(t, err)

	return &store.Store{DB: gormDB}, mock
}

func TestLockedWithNoHealthRow(t *testing.T) {
	assert.True(t, locked(nil))
}

func TestLockedWhenStale(t *testing.T) {
	assert.True(t, locked(&store.IngestHealth{HealthState: "stale", SnapshotStatus: "success"}))
}

func TestLockedWhenSnapshotFailed(t *testing.T) {
	assert.True(t, locked(&store.IngestHealth{HealthState: "healthy", SnapshotStatus: "failed"}))
}

func TestNotLockedWhenHealthy(t *testing.T) {
	assert.False(t, locked(&store.IngestHealth{HealthState: "healthy", SnapshotStatus: "success"}))
}

func TestRunSkipsCycleWhenNoHealthRowExists(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectQuery("SELECT \\* FROM `ingest_health`").WillReturnRows(sqlmock.NewRows(nil))

	table, err := configs.LoadAssetTable("")
	require.NoError(t, err)

	r := New(st, table)
	result, err := r.Run(time.Now())
	require.NoError(t, err)
	assert.True(t, result.Locked)
	assert.NoError(t, mock.ExpectationsWereMet())
}
