package audit

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/marketflow-cli/internal/reconcile"
)

func TestEnsureSchema(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS reconcile_audit").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	rec := NewRecorder(mock)
	require.NoError(t, rec.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecord(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO reconcile_audit").
		WithArgs(
			"11111111-1111-1111-1111-111111111111",
			"7203",
			"",
			"exchange_api",
			[]byte(`["missing_primary"]`),
			[]byte(`["exchange_api"]`),
			false,
			pgxmock.AnyArg(),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	rec := NewRecorder(mock)
	err = rec.Record(context.Background(),
		reconcile.Request{Ticker: "7203"},
		&reconcile.Result{
			RequestID:        "11111111-1111-1111-1111-111111111111",
			SelectedSource:   "exchange_api",
			Flags:            []reconcile.Flag{reconcile.FlagMissingPrimary},
			ConsultedSources: []string{"exchange_api"},
		})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecord_InsertError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO reconcile_audit").
		WillReturnError(assert.AnError)

	rec := NewRecorder(mock)
	err = rec.Record(context.Background(),
		reconcile.Request{Ticker: "7203"},
		&reconcile.Result{RequestID: "22222222-2222-2222-2222-222222222222", SelectedSource: "primary"})
	require.Error(t, err)
}
