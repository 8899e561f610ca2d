package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ReminderStatus string

const (
	ReminderSent   ReminderStatus = "sent"
	ReminderFailed ReminderStatus = "failed"
)

const MessageTypeWhatsApp = "whatsapp"

type ReminderLog struct {
	ID              string         `gorm:"type:uuid;primaryKey" json:"id"`
	PatientID       string         `gorm:"type:uuid;index;not null" json:"patient_id"`
	UserID          string         `gorm:"type:uuid;index;not null" json:"user_id"`
	AppointmentDate Date           `gorm:"type:date;index;not null" json:"appointment_date"`
	Status          ReminderStatus `gorm:"type:varchar(20);not null" json:"status"`
	MessageType     string         `gorm:"type:varchar(20);not null" json:"message_type"`
	ErrorMessage    string         `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

func (l *ReminderLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}
