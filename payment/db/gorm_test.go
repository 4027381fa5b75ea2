package db

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func newMockStore(t *testing.T) (*GormStore, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	gdb, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), gormConfig())
	if err != nil {
		t.Fatalf("gorm open: %v", err)
	}
	return NewGormStore(gdb), mock
}

func TestGormCreateDuplicateReference(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `payment_requests`")).
		WillReturnError(&mysqldriver.MySQLError{Number: 1062, Message: "Duplicate entry 'abc' for key 'reference'"})

	err := s.Create(context.Background(), &PaymentRequest{Reference: "abc", Status: StatusPending})
	if !errors.Is(err, ErrDuplicateReference) {
		t.Errorf("Create error = %v, want ErrDuplicateReference", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestGormCreate(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `payment_requests`")).
		WillReturnResult(sqlmock.NewResult(7, 1))

	p := &PaymentRequest{Reference: "abc", Status: StatusPending}
	if err := s.Create(context.Background(), p); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.ID != 7 {
		t.Errorf("ID = %d, want 7", p.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestGormFindByReference(t *testing.T) {
	s, mock := newMockStore(t)
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "reference", "token", "amount", "cart_total", "status", "created_at"}).
		AddRow(1, "ref1", "SOL", "6.000000000", "100.00", "pending", created)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `payment_requests` WHERE reference = ?")).
		WillReturnRows(rows)

	p, err := s.FindByReference(context.Background(), "ref1")
	if err != nil {
		t.Fatalf("FindByReference: %v", err)
	}
	if p.Reference != "ref1" || p.Status != StatusPending {
		t.Errorf("got %s/%s, want ref1/pending", p.Reference, p.Status)
	}
	if p.Amount.String() != "6" {
		t.Errorf("Amount = %s, want 6", p.Amount)
	}
	if !p.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want %v", p.CreatedAt, created)
	}
}

func TestGormFindByReferenceNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `payment_requests` WHERE reference = ?")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "reference"}))

	_, err := s.FindByReference(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestGormReferenceExists(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM `payment_requests` WHERE reference = ?")).
		WillReturnRows(sqlmock.NewRows([]string{"count(*)"}).AddRow(1))

	ok, err := s.ReferenceExists(context.Background(), "ref1")
	if err != nil {
		t.Fatalf("ReferenceExists: %v", err)
	}
	if !ok {
		t.Error("ReferenceExists = false, want true")
	}
}

func TestGormListByStatus(t *testing.T) {
	s, mock := newMockStore(t)
	rows := sqlmock.NewRows([]string{"id", "reference", "status"}).
		AddRow(1, "old", "pending").
		AddRow(2, "new", "pending")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `payment_requests` WHERE status = ? ORDER BY created_at asc")).
		WillReturnRows(rows)

	list, err := s.ListByStatus(context.Background(), StatusPending, 0)
	if err != nil {
		t.Fatalf("ListByStatus: %v", err)
	}
	if len(list) != 2 || list[0].Reference != "old" || list[1].Reference != "new" {
		t.Errorf("unexpected list %+v", list)
	}
}

func TestGormExpirePending(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE `payment_requests` SET")).
		WillReturnResult(sqlmock.NewResult(0, 3))

	now := time.Now()
	n, err := s.ExpirePending(context.Background(), now.Add(-2*time.Hour), now)
	if err != nil {
		t.Fatalf("ExpirePending: %v", err)
	}
	if n != 3 {
		t.Errorf("expired = %d, want 3", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestGormMarkVerified(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		want     bool
	}{
		{"pending row", 1, true},
		{"already terminal", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMockStore(t)
			mock.ExpectExec(regexp.QuoteMeta("UPDATE `payment_requests` SET")).
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			ok, err := s.MarkVerified(context.Background(), "ref1", "sig1", time.Now())
			if err != nil {
				t.Fatalf("MarkVerified: %v", err)
			}
			if ok != tt.want {
				t.Errorf("MarkVerified = %v, want %v", ok, tt.want)
			}
		})
	}
}
