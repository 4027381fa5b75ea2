package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// GormStore keeps payment requests in a SQL database through gorm.
type GormStore struct {
	db *gorm.DB
}

// Config used for every gorm handle the service opens. Single statement
// writes need no wrapping transaction, and driver errors are translated so a
// unique index violation surfaces as gorm.ErrDuplicatedKey.
func gormConfig() *gorm.Config {
	return &gorm.Config{
		SkipDefaultTransaction: true,
		TranslateError:         true,
		Logger:                 logger.Default.LogMode(logger.Warn),
	}
}

// ConnectMySQL opens a MySQL backed gorm handle and checks it is reachable.
func ConnectMySQL(dsn string) (*gorm.DB, error) {
	gdb, err := gorm.Open(mysql.Open(dsn), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	return gdb, nil
}

func NewGormStore(gdb *gorm.DB) *GormStore {
	return &GormStore{db: gdb}
}

// Sync creates or updates the payment_requests table and its indexes.
func (s *GormStore) Sync() error {
	return s.db.AutoMigrate(&PaymentRequest{})
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) Create(ctx context.Context, p *PaymentRequest) error {
	err := s.db.WithContext(ctx).Create(p).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateReference
	}
	if err != nil {
		return fmt.Errorf("create payment request: %w", err)
	}
	return nil
}

func (s *GormStore) ReferenceExists(ctx context.Context, reference string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&PaymentRequest{}).
		Where("reference = ?", reference).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("count reference: %w", err)
	}
	return n > 0, nil
}

func (s *GormStore) FindByReference(ctx context.Context, reference string) (*PaymentRequest, error) {
	var p PaymentRequest
	err := s.db.WithContext(ctx).Where("reference = ?", reference).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find payment request: %w", err)
	}
	return &p, nil
}

func (s *GormStore) ListByStatus(ctx context.Context, status Status, limit int) ([]PaymentRequest, error) {
	q := s.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at asc")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var list []PaymentRequest
	if err := q.Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list %s payment requests: %w", status, err)
	}
	return list, nil
}

func (s *GormStore) ExpirePending(ctx context.Context, cutoff, at time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&PaymentRequest{}).
		Where("status = ? AND created_at < ?", StatusPending, cutoff).
		Updates(map[string]interface{}{
			"status":     StatusCancelled,
			"updated_at": at,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("expire pending payment requests: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *GormStore) MarkVerified(ctx context.Context, reference, signature string, at time.Time) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&PaymentRequest{}).
		Where("reference = ? AND status = ?", reference, StatusPending).
		Updates(map[string]interface{}{
			"status":      StatusVerified,
			"signature":   signature,
			"verified_at": at,
			"updated_at":  at,
		})
	if res.Error != nil {
		return false, fmt.Errorf("mark %s verified: %w", reference, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
