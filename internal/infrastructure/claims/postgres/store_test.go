package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestTryClaimReturnsCachedResult(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	store := NewStore(db)
	mock.ExpectQuery("FROM work_claims").
		WithArgs("email:f1").
		WillReturnRows(sqlmock.NewRows([]string{"state", "result"}).AddRow("done", "ocr text"))

	res, err := store.TryClaim(context.Background(), "email:f1", 5*time.Second)
	if err != nil {
		t.Fatalf("TryClaim() error = %v", err)
	}
	if !res.Cached || res.Result != "ocr text" || res.Claimed {
		t.Fatalf("TryClaim() = %+v; want cache hit", res)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestTryClaimAcquiresWhenAbsent(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	store := NewStore(db)
	mock.ExpectQuery("FROM work_claims").
		WithArgs("email:f1").
		WillReturnRows(sqlmock.NewRows([]string{"state", "result"}))
	mock.ExpectExec("INSERT INTO work_claims").
		WithArgs("email:f1", float64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	res, err := store.TryClaim(context.Background(), "email:f1", 5*time.Second)
	if err != nil {
		t.Fatalf("TryClaim() error = %v", err)
	}
	if !res.Claimed || res.Cached {
		t.Fatalf("TryClaim() = %+v; want claimed", res)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestTryClaimDeniedWhenHeldElsewhere(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	store := NewStore(db)
	mock.ExpectQuery("FROM work_claims").
		WithArgs("email:f1").
		WillReturnRows(sqlmock.NewRows([]string{"state", "result"}).AddRow("claimed", ""))

	res, err := store.TryClaim(context.Background(), "email:f1", 5*time.Second)
	if err != nil {
		t.Fatalf("TryClaim() error = %v", err)
	}
	if res.Claimed || res.Cached {
		t.Fatalf("TryClaim() = %+v; want denial", res)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestTryClaimDeniedWhenConditionalWriteMissesNoRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	store := NewStore(db)
	mock.ExpectQuery("FROM work_claims").
		WithArgs("email:f1").
		WillReturnRows(sqlmock.NewRows([]string{"state", "result"}))
	mock.ExpectExec("INSERT INTO work_claims").
		WithArgs("email:f1", float64(5)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	res, err := store.TryClaim(context.Background(), "email:f1", 5*time.Second)
	if err != nil {
		t.Fatalf("TryClaim() error = %v", err)
	}
	if res.Claimed {
		t.Fatalf("claim granted although conditional write touched no row")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCompleteUpsertsCacheEntry(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	store := NewStore(db)
	mock.ExpectExec("INSERT INTO work_claims").
		WithArgs("attachment:f2", "text", float64(60)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.Complete(context.Background(), "attachment:f2", "text", time.Minute); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestReleaseOnlyDeletesClaims(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	store := NewStore(db)
	mock.ExpectExec("DELETE FROM work_claims").
		WithArgs("email:f1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.Release(context.Background(), "email:f1"); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
