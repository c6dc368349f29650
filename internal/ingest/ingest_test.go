package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/cohortsignal/engine/internal/store"
	"github.com/cohortsignal/engine/pkg/hyperliquid"
)

type stubFetcher struct {
	states map[string]*hyperliquid.ClearinghouseState
}

func (s stubFetcher) FetchMultiple(ctx context.Context, addrs []string, cap int) map[string]*hyperliquid.ClearinghouseState {
	out := make(map[string]*hyperliquid.ClearinghouseState, len(addrs))
	for _, a := range addrs {
		out[a] = s.states[a]
	}
	return out
}

func newMockStore(t *testing.T) (*store.Store, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	return &store.Store{DB: gormDB}, mock
}

func TestRunWritesSnapshotsAndHealthyRun(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery("SELECT \\* FROM `wallet_universe_current`").
		WillReturnRows(sqlmock.NewRows([]string{"wallet_id", "rank"}).
			AddRow("0xA", 1).AddRow("0xB", 2))
	mock.ExpectQuery("SELECT \\* FROM `ingest_health`").WillReturnRows(sqlmock.NewRows(nil))

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `wallet_snapshots`").WillReturnResult(sqlmock.NewResult(1, 6))
	mock.ExpectCommit()

	mock.ExpectExec("INSERT INTO `ingest_runs`").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO `ingest_health`").WillReturnResult(sqlmock.NewResult(1, 1))

	fetcher := stubFetcher{states: map[string]*hyperliquid.ClearinghouseState{
		"0xA": {Positions: []hyperliquid.Position{{Coin: "HYPE", Szi: 1}}},
		"0xB": {Positions: []hyperliquid.Position{{Coin: "BTC", Szi: -2}}},
	}}

	ing := New(fetcher, st, 8, 3*time.Minute)
	result, err := ing.Run(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, "success", result.Status)
	assert.Equal(t, 2, result.WalletsExpected)
	assert.Equal(t, 2, result.WalletsSucceeded)
	assert.Equal(t, 6, result.RowsWritten) // 2 wallets x 3 tracked assets
	assert.Equal(t, 100.0, result.CoveragePct)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMarksPartialWhenCoverageBetween5And95Percent(t *testing.T) {
	st, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"wallet_id", "rank"})
	for i := 0; i < 10; i++ {
		rows.AddRow(string(rune('A'+i)), i+1)
	}
	mock.ExpectQuery("SELECT \\* FROM `wallet_universe_current`").WillReturnRows(rows)
	mock.ExpectQuery("SELECT \\* FROM `ingest_health`").WillReturnRows(sqlmock.NewRows(nil))

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `wallet_snapshots`").WillReturnResult(sqlmock.NewResult(1, 3))
	mock.ExpectCommit()

	mock.ExpectExec("INSERT INTO `ingest_runs`").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO `ingest_health`").WillReturnResult(sqlmock.NewResult(1, 1))

	// 1 of 10 wallets returns state -> 10% coverage: partial (5%-95% band).
	fetcher := stubFetcher{states: map[string]*hyperliquid.ClearinghouseState{
		"A": {Positions: []hyperliquid.Position{{Coin: "HYPE", Szi: 1}}},
	}}

	ing := New(fetcher, st, 8, 3*time.Minute)
	result, err := ing.Run(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, "partial", result.Status)
	assert.Equal(t, 1, result.WalletsSucceeded)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMarksFailedOnEmptyUniverse(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery("SELECT \\* FROM `wallet_universe_current`").WillReturnRows(sqlmock.NewRows(nil))
	mock.ExpectQuery("SELECT \\* FROM `ingest_health`").WillReturnRows(sqlmock.NewRows(nil))

	mock.ExpectExec("INSERT INTO `ingest_runs`").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO `ingest_health`").WillReturnResult(sqlmock.NewResult(1, 1))

	ing := New(stubFetcher{}, st, 8, 3*time.Minute)
	result, err := ing.Run(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, "failed", result.Status)
	assert.Equal(t, 0, result.WalletsExpected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMarksFailedBelow5PercentCoverage(t *testing.T) {
	st, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"wallet_id", "rank"})
	for i := 0; i < 100; i++ {
		rows.AddRow(string(rune('A'+i%26))+string(rune('0'+i/26)), i+1)
	}
	mock.ExpectQuery("SELECT \\* FROM `wallet_universe_current`").WillReturnRows(rows)
	mock.ExpectQuery("SELECT \\* FROM `ingest_health`").WillReturnRows(sqlmock.NewRows(nil))

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `wallet_snapshots`").WillReturnResult(sqlmock.NewResult(1, 3))
	mock.ExpectCommit()

	mock.ExpectExec("INSERT INTO `ingest_runs`").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO `ingest_health`").WillReturnResult(sqlmock.NewResult(1, 1))

	// Only 1 of 100 wallets returns state -> 1% coverage, below the failed floor.
	fetcher := stubFetcher{states: map[string]*hyperliquid.ClearinghouseState{
		"A0": {Positions: []hyperliquid.Position{{Coin: "HYPE", Szi: 1}}},
	}}

	ing := New(fetcher, st, 8, 3*time.Minute)
	result, err := ing.Run(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, "failed", result.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHealthStateMapping(t *testing.T) {
	assert.Equal(t, "healthy", healthState("success", 100, 0, 3*time.Minute))
	assert.Equal(t, "degraded", healthState("partial", 85, 0, 3*time.Minute))
	assert.Equal(t, "stale", healthState("partial", 50, 0, 3*time.Minute)) // below degraded floor
	assert.Equal(t, "stale", healthState("failed", 0, 0, 3*time.Minute))
}

func TestHealthStateForcesStaleAfterThreshold(t *testing.T) {
	// A healthy-looking cycle is still forced stale once too long has
	// passed since the last real success.
	assert.Equal(t, "stale", healthState("success", 100, 4*time.Minute, 3*time.Minute))
	assert.Equal(t, "stale", healthState("partial", 90, 5*time.Minute, 3*time.Minute))
}
