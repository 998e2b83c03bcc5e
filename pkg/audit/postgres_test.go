package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDBRecorder(t *testing.T) (*DBRecorder, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS audit_logs").
		WillReturnResult(sqlmock.NewResult(0, 0))

	recorder, err := NewDBRecorder(db)
	require.NoError(t, err)
	return recorder, mock
}

func TestNewDBRecorder(t *testing.T) {
	t.Run("nil database is rejected", func(t *testing.T) {
		_, err := NewDBRecorder(nil)
		assert.Error(t, err)
	})

	t.Run("creates the table", func(t *testing.T) {
		recorder, mock := newTestDBRecorder(t)
		assert.NotNil(t, recorder)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("table creation failure propagates", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectExec("CREATE TABLE IF NOT EXISTS audit_logs").
			WillReturnError(errors.New("permission denied"))

		_, err = NewDBRecorder(db)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "audit_logs")
	})
}

func TestDBRecorder_Record(t *testing.T) {
	ctx := context.Background()

	t.Run("inserts the entry", func(t *testing.T) {
		recorder, mock := newTestDBRecorder(t)

		entry := NewEntry(ActionCancel, "u-1", "sub-1", ResultSuccess)
		mock.ExpectExec("INSERT INTO audit_logs").
			WithArgs(entry.ID, "cancelSubscription", "u-1", "sub-1", "success", sqlmock.AnyArg(), sqlmock.AnyArg(), entry.Timestamp).
			WillReturnResult(sqlmock.NewResult(1, 1))

		require.NoError(t, recorder.Record(ctx, entry))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insert failure propagates", func(t *testing.T) {
		recorder, mock := newTestDBRecorder(t)

		mock.ExpectExec("INSERT INTO audit_logs").
			WillReturnError(errors.New("connection lost"))

		err := recorder.Record(ctx, NewEntry(ActionPause, "u-1", "sub-1", ResultFailure))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "inserting audit entry")
	})

	t.Run("metadata is serialized", func(t *testing.T) {
		recorder, mock := newTestDBRecorder(t)

		entry := NewEntry(ActionUpdate, "u-1", "sub-1", ResultSuccess).
			WithMetadata(map[string]interface{}{"amount": 9900})
		mock.ExpectExec("INSERT INTO audit_logs").
			WithArgs(entry.ID, "updateSubscription", "u-1", "sub-1", "success", sqlmock.AnyArg(), []byte(`{"amount":9900}`), entry.Timestamp).
			WillReturnResult(sqlmock.NewResult(1, 1))

		require.NoError(t, recorder.Record(ctx, entry))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
