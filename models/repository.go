package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Repository persists one operator's patients. Every call is scoped by userID.
type Repository interface {
	ListPatients(ctx context.Context, userID string) ([]Patient, error)
	CreatePatient(ctx context.Context, patient *Patient) error
	GetPatientByID(ctx context.Context, userID, id string) (*Patient, error)
	UpdatePatient(ctx context.Context, userID, id string, patch PatientPatch) (*Patient, error)
	DeletePatient(ctx context.Context, userID, id string) error
	Close() error
}

// ReminderRepository is the cross-tenant view used by the reminder dispatcher.
type ReminderRepository interface {
	PatientsForReminder(ctx context.Context, date Date, statuses []Status) ([]Patient, error)
	SentReminderPatientIDs(ctx context.Context, patientIDs []string, date Date) (map[string]bool, error)
	CreateReminderLog(ctx context.Context, log *ReminderLog) error
}

type UserRepository interface {
	CreateUser(ctx context.Context, user *User) error
	GetUserByEmail(ctx context.Context, email string) (*User, error)
}

type PostgresRepository struct {
	db *gorm.DB
}

func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&Patient{}, &ReminderLog{}, &User{}); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate database: %w", err)
	}

	return &PostgresRepository{db: db}, nil
}

func (r *PostgresRepository) ListPatients(ctx context.Context, userID string) ([]Patient, error) {
	var patients []Patient
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&patients).Error
	if err != nil {
		return nil, err
	}
	return patients, nil
}

func (r *PostgresRepository) CreatePatient(ctx context.Context, patient *Patient) error {
	return r.db.WithContext(ctx).Create(patient).Error
}

func (r *PostgresRepository) GetPatientByID(ctx context.Context, userID, id string) (*Patient, error) {
	var patient Patient
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&patient).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &patient, nil
}

func (r *PostgresRepository) UpdatePatient(ctx context.Context, userID, id string, patch PatientPatch) (*Patient, error) {
	cols := patch.Columns()
	cols["updated_at"] = time.Now()

	res := r.db.WithContext(ctx).
		Model(&Patient{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(cols)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return r.GetPatientByID(ctx, userID, id)
}

func (r *PostgresRepository) DeletePatient(ctx context.Context, userID, id string) error {
	res := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&Patient{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) PatientsForReminder(ctx context.Context, date Date, statuses []Status) ([]Patient, error) {
	var patients []Patient
	err := r.db.WithContext(ctx).
		Where("appointment_date = ? AND status IN ?", date, statuses).
		Find(&patients).Error
	return patients, err
}

func (r *PostgresRepository) SentReminderPatientIDs(ctx context.Context, patientIDs []string, date Date) (map[string]bool, error) {
	sent := make(map[string]bool)
	if len(patientIDs) == 0 {
		return sent, nil
	}

	var ids []string
	err := r.db.WithContext(ctx).
		Model(&ReminderLog{}).
		Where("patient_id IN ? AND appointment_date = ? AND status = ?", patientIDs, date, ReminderSent).
		Pluck("patient_id", &ids).Error
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		sent[id] = true
	}
	return sent, nil
}

func (r *PostgresRepository) CreateReminderLog(ctx context.Context, log *ReminderLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

func (r *PostgresRepository) CreateUser(ctx context.Context, user *User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *PostgresRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
