// Package consumer keeps the patient search index in step with the
// patient_events topic.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"magnata-crm/models"
	"magnata-crm/utils"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

// indexedPatient is the document stored in the search index.
type indexedPatient struct {
	ID           string   `json:"id"`
	UserID       string   `json:"user_id"`
	Name         string   `json:"name"`
	Phone        string   `json:"phone"`
	Status       string   `json:"status"`
	MediaOrigin  string   `json:"media_origin"`
	Procedures   []string `json:"procedures"`
	Observations string   `json:"observations,omitempty"`
}

type PatientConsumer struct {
	es     utils.ElasticsearchClient
	reader *kafka.Reader
	done   chan struct{}
}

func NewPatientConsumer(broker string, es utils.ElasticsearchClient) *PatientConsumer {
	return &PatientConsumer{
		es: es,
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers: []string{broker},
			Topic:   utils.TopicPatientEvents,
			GroupID: "magnata-crm-indexer",
			MaxWait: 10 * time.Second,
		}),
		done: make(chan struct{}),
	}
}

// Start consumes until ctx is cancelled. Offsets are committed only after an
// event has been applied to the index.
func (c *PatientConsumer) Start(ctx context.Context) {
	log.Info().Str("topic", utils.TopicPatientEvents).Msg("starting patient event consumer")

	go func() {
		defer close(c.done)
		for {
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
					return
				}
				log.Warn().Err(err).Msg("kafka read error, retrying")
				select {
				case <-ctx.Done():
					return
				case <-time.After(5 * time.Second):
				}
				continue
			}

			if err := c.Handle(ctx, msg.Value); err != nil {
				log.Error().Err(err).Int64("offset", msg.Offset).Msg("failed to apply patient event")
				continue
			}
			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				log.Warn().Err(err).Msg("failed to commit kafka offset")
			}
		}
	}()
}

// Stop closes the reader and waits for the consume loop to exit.
func (c *PatientConsumer) Stop() {
	if err := c.reader.Close(); err != nil {
		log.Warn().Err(err).Msg("error closing kafka reader")
	}
	<-c.done
}

// Handle applies one patient event to the search index. Malformed payloads
// and unknown events are logged and dropped.
func (c *PatientConsumer) Handle(ctx context.Context, payload []byte) error {
	var event models.PatientEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		log.Warn().Err(err).Msg("dropping malformed patient event")
		return nil
	}
	p := event.Data
	if p.ID == "" {
		log.Warn().Str("event", event.Event).Msg("dropping patient event without id")
		return nil
	}

	switch event.Event {
	case models.EventPatientCreated, models.EventPatientUpdated:
		doc := indexedPatient{
			ID:           p.ID,
			UserID:       p.UserID,
			Name:         p.Name,
			Phone:        p.Phone,
			Status:       string(p.Status),
			MediaOrigin:  string(p.MediaOrigin),
			Procedures:   p.Procedures,
			Observations: p.Observations,
		}
		if err := c.es.IndexDocument(ctx, utils.PatientIndex, p.ID, doc); err != nil {
			return fmt.Errorf("index patient %s: %w", p.ID, err)
		}
	case models.EventPatientDeleted:
		if err := c.es.DeleteDocument(ctx, utils.PatientIndex, p.ID); err != nil {
			return fmt.Errorf("delete patient %s: %w", p.ID, err)
		}
	default:
		log.Warn().Str("event", event.Event).Msg("unknown patient event")
		return nil
	}

	log.Debug().Str("event", event.Event).Str("patient_id", p.ID).Msg("patient event applied")
	return nil
}
