package repository_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/ticket-reconciler/internal/model"
	"github.com/iliyamo/ticket-reconciler/internal/repository"
	"github.com/iliyamo/ticket-reconciler/internal/store"
)

// openTestDB connects to the database named by MYSQL_TEST_DSN and creates
// the schema.  Tests are skipped when the variable is unset.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("MYSQL_TEST_DSN")
	if dsn == "" {
		t.Skip("MYSQL_TEST_DSN not set")
	}
	cfg, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	connector, err := mysql.NewConnector(cfg)
	require.NoError(t, err)
	db := sql.OpenDB(connector)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, repository.InitializeSchema(context.Background(), db))
	return db
}

func insertTicket(t *testing.T, db *sql.DB, status model.TicketStatus) (ticketID uint64, qr string) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	res, err := db.ExecContext(ctx,
		`INSERT INTO seat_sales (sales_status, sales_start_at, sales_end_at, admission_available_at) VALUES (?,?,?,?)`,
		string(model.SalesOnSale), now.Add(-time.Hour), now.Add(time.Hour), now.Add(2*time.Hour))
	require.NoError(t, err)
	saleID, err := res.LastInsertId()
	require.NoError(t, err)

	qr = "qr-" + uuid.NewString()
	res, err = db.ExecContext(ctx, `INSERT INTO tickets (seat_sale_id, status, qr_code) VALUES (?,?,?)`,
		saleID, string(status), qr)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return uint64(id), qr
}

func TestRepo_TicketLookups(t *testing.T) {
	db := openTestDB(t)
	repo := repository.New(db)
	ctx := context.Background()
	id, qr := insertTicket(t, db, model.TicketAvailable)

	got, err := repo.TicketByQRCode(ctx, qr)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, model.TicketAvailable, got.Status)
	assert.Nil(t, got.UserID)

	_, err = repo.TicketByQRCode(ctx, "qr-missing-"+uuid.NewString())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRepo_CompareAndSwapTicketStatus(t *testing.T) {
	db := openTestDB(t)
	repo := repository.New(db)
	ctx := context.Background()
	id, _ := insertTicket(t, db, model.TicketAvailable)

	ok, err := repo.CompareAndSwapTicketStatus(ctx, id, model.TicketAvailable, model.TicketTemporarilyHeld)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.CompareAndSwapTicketStatus(ctx, id, model.TicketAvailable, model.TicketTemporarilyHeld)
	require.NoError(t, err)
	assert.False(t, ok, "a second claim observes no changed row")
}

func TestRepo_AtomicRollsBack(t *testing.T) {
	db := openTestDB(t)
	repo := repository.New(db)
	ctx := context.Background()
	id, _ := insertTicket(t, db, model.TicketAvailable)
	boom := errors.New("boom")

	err := repo.Atomic(ctx, func(tx store.Store) error {
		if _, err := tx.CompareAndSwapTicketStatus(ctx, id, model.TicketAvailable, model.TicketTemporarilyHeld); err != nil {
			return err
		}
		entry := model.TicketLog{TicketID: id, LogType: model.LogNormal, RequestStatus: model.AdmissionEntered,
			Status: model.AdmissionBeforeEntry, Result: true, ResultStatus: model.AdmissionEntered}
		if err := tx.CreateTicketLog(ctx, &entry); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := repo.TicketByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.TicketAvailable, got.Status)
	latest, err := repo.LatestTicketLog(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestRepo_TicketLogsInOrder(t *testing.T) {
	db := openTestDB(t)
	repo := repository.New(db)
	ctx := context.Background()
	id, _ := insertTicket(t, db, model.TicketSold)
	device := "gate-1"

	for _, s := range []model.AdmissionStatus{model.AdmissionEntered, model.AdmissionLeft} {
		entry := model.TicketLog{TicketID: id, LogType: model.LogNormal, RequestStatus: s,
			Status: model.AdmissionBeforeEntry, Result: true, ResultStatus: s, DeviceID: &device}
		require.NoError(t, repo.CreateTicketLog(ctx, &entry))
		assert.NotZero(t, entry.ID)
	}

	logs, err := repo.TicketLogs(ctx, id)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, model.AdmissionEntered, logs[0].ResultStatus)
	assert.Equal(t, model.AdmissionLeft, logs[1].ResultStatus)
	require.NotNil(t, logs[1].DeviceID)
	assert.Equal(t, device, *logs[1].DeviceID)

	latest, err := repo.LatestTicketLog(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, logs[1].ID, latest.ID)
}
