package aggregator

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

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

func TestAggregatePairsCurrentWithPrevious(t *testing.T) {
	st, mock := newMockStore(t)
	signalTs := time.Now().Truncate(time.Minute)

	currentRows := sqlmock.NewRows([]string{"snapshot_ts", "wallet_id", "asset", "szi", "is_dirty"}).
		AddRow(signalTs, "0xA", "HYPE", 2.0, false).
		AddRow(signalTs, "0xB", "HYPE", 1.0, false)
	mock.ExpectQuery("SELECT \\* FROM `wallet_snapshots`").WillReturnRows(currentRows)

	previousRows := sqlmock.NewRows([]string{"snapshot_ts", "wallet_id", "asset", "szi", "is_dirty"}).
		AddRow(signalTs.Add(-5*time.Minute), "0xA", "HYPE", 1.0, false)
	mock.ExpectQuery("SELECT \\* FROM `wallet_snapshots`").WillReturnRows(previousRows)

	result, err := Aggregate(st, "HYPE", signalTs)
	require.NoError(t, err)
	assert.Equal(t, 1, result.WalletCount)
	assert.Equal(t, 1, result.MissingCount)
	assert.Len(t, result.Wallets, 2)

	var a, b WalletDelta
	for _, w := range result.Wallets {
		if w.WalletID == "0xA" {
			a = w
		} else {
			b = w
		}
	}
	require.NotNil(t, a.Delta)
	assert.InDelta(t, 1.0, *a.Delta, 1e-9)
	assert.Nil(t, b.Delta)
	assert.NoError(t, mock.ExpectationsWereMet())
}
