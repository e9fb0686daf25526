package dayadvancer

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"mailnexy/internal/clock"
	"mailnexy/models"
)

func newTestAdvancer(t *testing.T, fixed time.Time) (*Advancer, sqlmock.Sqlmock, func()) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)

	gdb, err := gorm.Open(postgres.New(postgres.Config{
		Conn:       sqlDB,
		DriverName: "postgres",
	}), &gorm.Config{})
	require.NoError(t, err)

	log := logrus.New()
	log.SetOutput(io.Discard)
	return New(gdb, clock.Fixed{At: fixed}, log), mock, func() { sqlDB.Close() }
}

func TestMaybeAdvance_AlreadyAdvancedTodaySkipsDBWork(t *testing.T) {
	now := time.Date(2026, time.March, 9, 10, 0, 0, 0, time.UTC)
	a, mock, cleanup := newTestAdvancer(t, now)
	defer cleanup()

	today := now.Truncate(24 * time.Hour)
	sender := &models.Mailbox{TZ: "UTC", WarmupDay: 5, Target: 1000, LastAdvanceDate: &today}
	sender.ID = 3

	a.maybeAdvance(context.Background(), sender)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMaybeAdvance_BadTimezoneSkips(t *testing.T) {
	now := time.Date(2026, time.March, 9, 10, 0, 0, 0, time.UTC)
	a, mock, cleanup := newTestAdvancer(t, now)
	defer cleanup()

	sender := &models.Mailbox{TZ: "Not/A_Zone"}
	sender.ID = 3

	a.maybeAdvance(context.Background(), sender)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMaybeAdvance_AdvancesWhenNotYetAdvancedToday(t *testing.T) {
	now := time.Date(2026, time.March, 9, 10, 0, 0, 0, time.UTC)
	a, mock, cleanup := newTestAdvancer(t, now)
	defer cleanup()

	yesterday := now.Add(-24 * time.Hour).Truncate(24 * time.Hour)
	sender := &models.Mailbox{TZ: "UTC", WarmupDay: 7, Target: 1000, LastAdvanceDate: &yesterday}
	sender.ID = 3

	rows := sqlmock.NewRows([]string{"id", "tz", "warmup_day", "target", "last_advance_date"}).
		AddRow(3, "UTC", 7, 1000, yesterday)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "mailboxes" WHERE id = \$[0-9]+`).WillReturnRows(rows)
	mock.ExpectExec(`UPDATE "mailboxes" SET .*"warmup_day"=\$[0-9]+.*WHERE id = \$[0-9]+`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	a.maybeAdvance(context.Background(), sender)
	require.NoError(t, mock.ExpectationsWereMet())
}
