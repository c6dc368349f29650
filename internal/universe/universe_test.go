package universe

import (
	"context"
	"errors"
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
	rows []hyperliquid.LeaderboardRow
	err  error
}

func (s stubFetcher) FetchLeaderboard(ctx context.Context) ([]hyperliquid.LeaderboardRow, error) {
	return s.rows, s.err
}

func rowWithPnl(addr string, pnl float64) hyperliquid.LeaderboardRow {
	return hyperliquid.LeaderboardRow{
		EthAddress: addr,
		WindowPerformances: []hyperliquid.WindowPerformance{
			{Window: "month", Pnl: pnl, Roi: 0.1},
		},
	}
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

func TestRankByMonthPnlDescending(t *testing.T) {
	rows := []hyperliquid.LeaderboardRow{
		rowWithPnl("0xA", 10),
		rowWithPnl("0xB", 50),
		rowWithPnl("0xC", 30),
	}
	ranked := rankByMonthPnl(rows)
	assert.Equal(t, []string{"0xB", "0xC", "0xA"}, []string{ranked[0].EthAddress, ranked[1].EthAddress, ranked[2].EthAddress})
}

func TestRefreshRecordsFailedRunOnFetchError(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO `wallet_universe_runs`").WillReturnResult(sqlmock.NewResult(1, 1))

	r := New(stubFetcher{err: errors.New("network down")}, st, 10)
	result, err := r.Refresh(context.Background(), time.Now())
	require.NoError(t, err)
	assert.False(t, result.Accepted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshRecordsFailedRunOnInsufficientRows(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO `wallet_universe_runs`").WillReturnResult(sqlmock.NewResult(1, 1))

	rows := []hyperliquid.LeaderboardRow{rowWithPnl("0xA", 10), rowWithPnl("0xB", 5)}
	r := New(stubFetcher{rows: rows}, st, 10)
	result, err := r.Refresh(context.Background(), time.Now())
	require.NoError(t, err)
	assert.False(t, result.Accepted)
	assert.Equal(t, 2, result.ValidRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshAcceptsAndReplacesUniverseWhenEnoughRows(t *testing.T) {
	st, mock := newMockStore(t)

	rows := make([]hyperliquid.LeaderboardRow, 0, 10)
	for i := 0; i < 10; i++ {
		rows = append(rows, rowWithPnl(string(rune('A'+i)), float64(10-i)))
	}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM `wallet_universe_current`").WillReturnRows(sqlmock.NewRows(nil))
	mock.ExpectExec("INSERT INTO `wallet_universe_runs`").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO `wallet_universe_members`").WillReturnResult(sqlmock.NewResult(1, 10))
	mock.ExpectExec("DELETE FROM `wallet_universe_current`").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO `wallet_universe_current`").WillReturnResult(sqlmock.NewResult(1, 10))
	mock.ExpectCommit()

	r := New(stubFetcher{rows: rows}, st, 10)
	result, err := r.Refresh(context.Background(), time.Now())
	require.NoError(t, err)
	assert.True(t, result.Accepted)
	assert.Equal(t, 10, result.ValidRows)
	assert.ElementsMatch(t, result.Entered, []string{"A", "B", "C", "D", "E", "F", "G", "H", "I", "J"})
	assert.NoError(t, mock.ExpectationsWereMet())
}
