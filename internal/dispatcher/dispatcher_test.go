package dispatcher

import (
	"context"
	"io"
	"math/rand"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"mailnexy/internal/apperr"
	"mailnexy/internal/clock"
	"mailnexy/internal/mailclient"
	"mailnexy/internal/planner"
	"mailnexy/internal/store"
	"mailnexy/models"
)

func testSender() *models.Mailbox {
	s := &models.Mailbox{
		Email:      "sender@example.com",
		Provider:   models.ProviderOther,
		Role:       models.RoleSender,
		TZ:         "UTC",
		Active:     true,
		DailyLimit: 0,
	}
	s.ID = 7
	return s
}

func newTestDispatcher(t *testing.T) (*Dispatcher, sqlmock.Sqlmock, func()) {
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
	d := New(gdb, store.New(gdb, 5*time.Minute, 2*time.Minute), clock.Fixed{At: time.Date(2026, time.March, 9, 15, 0, 0, 0, time.UTC)},
		mailclient.NewRegistry(), mailclient.NewStaticContentGenerator(rand.New(rand.NewSource(1))),
		rand.New(rand.NewSource(1)), log, clock.DefaultConfig(), planner.DefaultBandWeights())
	return d, mock, func() { sqlDB.Close() }
}

func TestPickRecipient_NoActiveRecipientsReturnsInvalidPlan(t *testing.T) {
	d, mock, cleanup := newTestDispatcher(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT \* FROM "mailboxes" WHERE role = \$[0-9]+ AND active = \$[0-9]+`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := d.pickRecipient(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperr.KindInvalidPlan, apperr.KindOf(err))
}

func TestPickRecipient_PicksAmongActiveRecipients(t *testing.T) {
	d, mock, cleanup := newTestDispatcher(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{"id", "email", "role", "active"}).
		AddRow(1, "recipient1@example.com", "RECIPIENT", true).
		AddRow(2, "recipient2@example.com", "RECIPIENT", true)
	mock.ExpectQuery(`SELECT \* FROM "mailboxes" WHERE role = \$[0-9]+ AND active = \$[0-9]+`).
		WillReturnRows(rows)

	r, err := d.pickRecipient(context.Background())
	require.NoError(t, err)
	assert.Contains(t, []string{"recipient1@example.com", "recipient2@example.com"}, r.Email)
}

func TestEnsurePlanned_SkipsWhenPlanAlreadyExists(t *testing.T) {
	d, mock, cleanup := newTestDispatcher(t)
	defer cleanup()

	sender := testSender()

	mock.ExpectQuery(`SELECT count\(\*\) FROM "plan_entries" WHERE sender_id = \$[0-9]+ AND local_date = \$[0-9]+`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	err := d.EnsurePlanned(context.Background(), sender, clock.DefaultConfig())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsurePlanned_BadTimezoneIsInvalidPlan(t *testing.T) {
	d, _, cleanup := newTestDispatcher(t)
	defer cleanup()

	sender := testSender()
	sender.TZ = "Not/A_Zone"

	err := d.EnsurePlanned(context.Background(), sender, clock.DefaultConfig())
	require.Error(t, err)
	assert.Equal(t, apperr.KindInvalidPlan, apperr.KindOf(err))
}

func TestEnsurePlanned_GeneratesAndStoresPlanWhenNoneExists(t *testing.T) {
	d, mock, cleanup := newTestDispatcher(t)
	defer cleanup()

	sender := testSender()
	sender.DailyLimit = 20

	mock.ExpectQuery(`SELECT count\(\*\) FROM "plan_entries" WHERE sender_id = \$[0-9]+ AND local_date = \$[0-9]+`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "plan_entries" WHERE \(sender_id = \$[0-9]+ AND local_date = \$[0-9]+ AND status = \$[0-9]+\)`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	insertRows := sqlmock.NewRows([]string{"id", "created_at", "updated_at"})
	for i := 1; i <= 20; i++ {
		insertRows.AddRow(i, time.Now(), time.Now())
	}
	mock.ExpectQuery(`INSERT INTO "plan_entries"`).
		WillReturnRows(insertRows)
	mock.ExpectCommit()

	err := d.EnsurePlanned(context.Background(), sender, clock.DefaultConfig())
	require.NoError(t, err)
}
