package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"magnata-crm/utils"

	"github.com/rs/zerolog/log"
)

// Alerter emits the audible alert that accompanies a batch of reminders.
type Alerter interface {
	Alert(ctx context.Context, notifications []Notification) error
}

type LogAlerter struct {
	UserID string
}

func (a LogAlerter) Alert(ctx context.Context, notifications []Notification) error {
	log.Info().
		Str("user_id", a.UserID).
		Int("count", len(notifications)).
		Msg("reminder alert")
	return nil
}

type AlertEvent struct {
	Event      string    `json:"event"`
	UserID     string    `json:"user_id"`
	PatientIDs []string  `json:"patient_ids"`
	Keys       []string  `json:"keys"`
	RaisedAt   time.Time `json:"raised_at"`
}

// KafkaAlerter publishes a reminder_alert event; the operator's browser plays
// the sound when it receives one.
type KafkaAlerter struct {
	producer utils.KafkaProducer
	userID   string
}

func NewKafkaAlerter(producer utils.KafkaProducer, userID string) *KafkaAlerter {
	return &KafkaAlerter{producer: producer, userID: userID}
}

func (a *KafkaAlerter) Alert(ctx context.Context, notifications []Notification) error {
	event := AlertEvent{
		Event:  "reminder_alert",
		UserID: a.userID,
	}
	for _, n := range notifications {
		event.PatientIDs = append(event.PatientIDs, n.Patient.ID)
		event.Keys = append(event.Keys, n.Key)
		event.RaisedAt = n.RaisedAt
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal alert event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return a.producer.SendMessage(ctx, utils.TopicNotificationEvents, []byte(a.userID), payload)
}
