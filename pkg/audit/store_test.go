package audit

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreSave(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStoreWithDB(db)
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(`INSERT INTO audit_messages`).
		WithArgs(
			FacilityAuthPriv,  // facility
			int(SeverityInfo), // severity
			ts,                // timestamp
			"host1",           // hostname
			"rekognition",     // appname
			"100",             // procid
			"authn",           // msgid
			sqlmock.AnyArg(),  // sdata (JSON)
			"alice successfully authenticated",
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = store.Save(context.Background(),
		LoginEvent{Username: "alice", UserID: 1, Success: true},
		Message{Timestamp: ts, Hostname: "host1", Appname: "rekognition", Procid: "100"},
	)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoggerPersistsToStore(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	var buf bytes.Buffer
	logger := newTestLogger(&buf)
	logger.SetStore(NewStoreWithDB(db))

	mock.ExpectExec(`INSERT INTO audit_messages`).
		WithArgs(
			FacilityAuth,
			int(SeverityWarning),
			sqlmock.AnyArg(),
			"host1",
			"rekognition",
			"100",
			"analyze",
			sqlmock.AnyArg(),
			"alice uploaded bad.jpg: error processing file",
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	logger.Log(AnalysisEvent{Username: "alice", Filename: "bad.jpg", Status: "error processing file"})

	assert.NotEmpty(t, buf.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNilStore(t *testing.T) {
	store, err := NewStore("")
	require.NoError(t, err)
	assert.Nil(t, store)
	assert.NoError(t, store.Save(context.Background(), RegisterEvent{}, Message{}))
	assert.NoError(t, store.Close())
}

func TestLoggerBoundsSlowStore(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	var buf bytes.Buffer
	logger := newTestLogger(&buf)
	logger.SetStore(NewStoreWithDB(db))
	logger.saveTimeout = 50 * time.Millisecond

	mock.ExpectExec(`INSERT INTO audit_messages`).
		WillDelayFor(5 * time.Second).
		WillReturnResult(sqlmock.NewResult(1, 1))

	start := time.Now()
	logger.Log(RegisterEvent{Username: "alice", Success: true})

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Contains(t, buf.String(), "alice registered")
}

func TestLoggerReleasesLockDuringSave(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	logger := newTestLogger(&bytes.Buffer{})
	logger.SetStore(NewStoreWithDB(db))

	mock.ExpectExec(`INSERT INTO audit_messages`).
		WillDelayFor(500 * time.Millisecond).
		WillReturnResult(sqlmock.NewResult(1, 1))

	done := make(chan struct{})
	go func() {
		defer close(done)
		logger.Log(RegisterEvent{Username: "alice", Success: true})
	}()
	time.Sleep(50 * time.Millisecond)

	var other bytes.Buffer
	start := time.Now()
	logger.SetWriter(&other)
	assert.Less(t, time.Since(start), 250*time.Millisecond)

	<-done
	assert.NoError(t, mock.ExpectationsWereMet())
}
