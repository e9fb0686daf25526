package spamrecovery

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"mailnexy/internal/mailclient"
	"mailnexy/models"
)

// failingUnspamClient always fails Unspam; the other Client methods are
// unused by recoverOne and panic if ever called.
type failingUnspamClient struct {
	mailclient.Client
}

func (failingUnspamClient) Unspam(ctx context.Context, ep mailclient.Endpoint, creds models.CredentialBundle, providerMsgID string) error {
	return errors.New("imap: move to inbox failed")
}

func newTestRecovery(t *testing.T) (*Recovery, sqlmock.Sqlmock, func()) {
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
	return New(gdb, mailclient.NewRegistry(), log), mock, func() { sqlDB.Close() }
}

func TestFindOrCreateEvent_ReturnsExistingEvent(t *testing.T) {
	r, mock, cleanup := newTestRecovery(t)
	defer cleanup()

	recipient := &models.Mailbox{}
	recipient.ID = 4
	in := mailclient.InboundMessage{ProviderMsgID: "msg-1"}
	now := time.Date(2026, time.March, 9, 12, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"id", "recipient_id", "provider_msg", "status", "attempts"}).
		AddRow(1, 4, "msg-1", "DETECTED", 0)
	mock.ExpectQuery(`SELECT \* FROM "spam_events" WHERE recipient_id = \$[0-9]+ AND provider_msg = \$[0-9]+`).
		WillReturnRows(rows)

	event, err := r.findOrCreateEvent(context.Background(), recipient, in, now)
	require.NoError(t, err)
	require.NotNil(t, event)
	require.Equal(t, uint(1), event.ID)
	require.Equal(t, models.SpamDetected, event.Status)
}

func TestFindOrCreateEvent_CreatesNewEventWhenNoneExists(t *testing.T) {
	r, mock, cleanup := newTestRecovery(t)
	defer cleanup()

	recipient := &models.Mailbox{}
	recipient.ID = 4
	in := mailclient.InboundMessage{ProviderMsgID: "msg-2"}
	now := time.Date(2026, time.March, 9, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT \* FROM "spam_events" WHERE recipient_id = \$[0-9]+ AND provider_msg = \$[0-9]+`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`SELECT \* FROM "messages" WHERE provider_msg_id = \$[0-9]+`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "spam_events"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(9, now, now))
	mock.ExpectCommit()

	event, err := r.findOrCreateEvent(context.Background(), recipient, in, now)
	require.NoError(t, err)
	require.NotNil(t, event)
	require.Equal(t, models.SpamDetected, event.Status)
	require.Equal(t, "msg-2", event.ProviderMsg)
}

func TestRecoverOne_StaysOpenUntilMaxAttemptsOnRepeatedFailure(t *testing.T) {
	r, mock, cleanup := newTestRecovery(t)
	defer cleanup()

	recipient := &models.Mailbox{}
	recipient.ID = 4
	in := mailclient.InboundMessage{ProviderMsgID: "msg-3"}
	now := time.Date(2026, time.March, 9, 12, 0, 0, 0, time.UTC)
	client := failingUnspamClient{}

	for attempt := 0; attempt < MaxAttempts; attempt++ {
		mock.ExpectQuery(`SELECT \* FROM "spam_events" WHERE recipient_id = \$[0-9]+ AND provider_msg = \$[0-9]+`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "recipient_id", "provider_msg", "status", "attempts"}).
				AddRow(5, 4, "msg-3", "DETECTED", attempt))
		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE "spam_events" SET .*"attempts"=\$[0-9]+.*WHERE id = \$[0-9]+`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		r.recoverOne(context.Background(), recipient, client, mailclient.Endpoint{}, in, now)
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecoverOne_SetsTerminalFailedOnlyAtMaxAttempts(t *testing.T) {
	r, mock, cleanup := newTestRecovery(t)
	defer cleanup()

	recipient := &models.Mailbox{}
	recipient.ID = 4
	in := mailclient.InboundMessage{ProviderMsgID: "msg-4"}
	now := time.Date(2026, time.March, 9, 12, 0, 0, 0, time.UTC)
	client := failingUnspamClient{}

	mock.ExpectQuery(`SELECT \* FROM "spam_events" WHERE recipient_id = \$[0-9]+ AND provider_msg = \$[0-9]+`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "recipient_id", "provider_msg", "status", "attempts"}).
			AddRow(6, 4, "msg-4", "DETECTED", MaxAttempts-1))
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "spam_events" SET .*"status"=\$[0-9]+.*WHERE id = \$[0-9]+`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	r.recoverOne(context.Background(), recipient, client, mailclient.Endpoint{}, in, now)
	require.NoError(t, mock.ExpectationsWereMet())
}
