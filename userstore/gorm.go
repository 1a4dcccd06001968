package userstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/mailotp/mailotp"
)

// userRow is the persistence model. Status is stored as its string form so
// the table stays readable without this package's enum.
type userRow struct {
	UserID     string `gorm:"primaryKey;size:64"`
	Email      string `gorm:"uniqueIndex;size:254;not null"`
	Status     string `gorm:"size:32;not null"`
	GivenName  string `gorm:"size:128"`
	FamilyName string `gorm:"size:128"`
	CreatedAt  time.Time
	VerifiedAt *time.Time
	LastLogin  *time.Time
}

func (userRow) TableName() string {
	return "users"
}

// Store is a [mailotp.UserProvider] over a GORM connection.
type Store struct {
	db *gorm.DB
}

// New wraps an open GORM connection. Migrate must be called once before the
// store is used against a fresh database.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the users table.
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&userRow{})
}

// GetUserByEmail returns the user for the address, or an error wrapping
// [mailotp.ErrUserNotFound].
func (s *Store) GetUserByEmail(ctx context.Context, email string) (mailotp.UserRecord, error) {
	var row userRow
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return mailotp.UserRecord{}, fmt.Errorf("%w: %s", mailotp.ErrUserNotFound, email)
		}
		return mailotp.UserRecord{}, fmt.Errorf("user lookup: %w", err)
	}
	return toRecord(row), nil
}

// CreateUser inserts a pending user. A concurrent insert for the same email
// loses to the unique index; the caller sees the conflict as an error and
// retries the lookup on the next invocation.
func (s *Store) CreateUser(ctx context.Context, input mailotp.CreateUserInput) (mailotp.UserRecord, error) {
	row := userRow{
		UserID:    input.UserID,
		Email:     input.Email,
		Status:    mailotp.StatusPendingVerification.String(),
		CreatedAt: input.CreatedAt,
	}

	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return mailotp.UserRecord{}, fmt.Errorf("user create: %w", err)
	}

	return toRecord(row), nil
}

// MarkVerified promotes a pending user to verified. The guarded WHERE makes
// the promotion one-way: a user already verified is left untouched and no
// error is reported.
func (s *Store) MarkVerified(ctx context.Context, userID string, at time.Time) error {
	res := s.db.WithContext(ctx).
		Model(&userRow{}).
		Where("user_id = ? AND status = ?", userID, mailotp.StatusPendingVerification.String()).
		Updates(map[string]any{
			"status":      mailotp.StatusVerified.String(),
			"verified_at": at,
		})
	if res.Error != nil {
		return fmt.Errorf("mark verified: %w", res.Error)
	}

	if res.RowsAffected == 0 {
		// Already verified, or no such user. Distinguish for the caller's
		// audit trail.
		var count int64
		if err := s.db.WithContext(ctx).Model(&userRow{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
			return fmt.Errorf("mark verified: %w", err)
		}
		if count == 0 {
			return fmt.Errorf("%w: %s", mailotp.ErrUserNotFound, userID)
		}
	}

	return nil
}

// UpdateLastLogin stamps the user's last successful challenge completion.
func (s *Store) UpdateLastLogin(ctx context.Context, userID string, at time.Time) error {
	res := s.db.WithContext(ctx).
		Model(&userRow{}).
		Where("user_id = ?", userID).
		Update("last_login", at)
	if res.Error != nil {
		return fmt.Errorf("update last login: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", mailotp.ErrUserNotFound, userID)
	}
	return nil
}

func toRecord(row userRow) mailotp.UserRecord {
	record := mailotp.UserRecord{
		UserID:     row.UserID,
		Email:      row.Email,
		GivenName:  row.GivenName,
		FamilyName: row.FamilyName,
		CreatedAt:  row.CreatedAt,
	}
	if row.Status == mailotp.StatusVerified.String() {
		record.Status = mailotp.StatusVerified
	}
	if row.LastLogin != nil {
		record.LastLogin = *row.LastLogin
	}
	return record
}
