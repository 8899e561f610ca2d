package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"magnata-crm/models"
	"magnata-crm/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockElasticsearch struct {
	IndexFunc  func(ctx context.Context, index, id string, document interface{}) error
	DeleteFunc func(ctx context.Context, index, id string) error
}

var _ utils.ElasticsearchClient = (*MockElasticsearch)(nil)

func (m *MockElasticsearch) EnsurePatientIndex(ctx context.Context) error { return nil }

func (m *MockElasticsearch) IndexDocument(ctx context.Context, index, id string, document interface{}) error {
	return m.IndexFunc(ctx, index, id, document)
}

func (m *MockElasticsearch) Search(ctx context.Context, index string, query map[string]interface{}) ([]json.RawMessage, error) {
	return nil, nil
}

func (m *MockElasticsearch) DeleteDocument(ctx context.Context, index, id string) error {
	return m.DeleteFunc(ctx, index, id)
}

func (m *MockElasticsearch) Close() error { return nil }

func event(t *testing.T, kind string, p models.Patient) []byte {
	t.Helper()
	b, err := json.Marshal(models.PatientEvent{Event: kind, Data: p})
	require.NoError(t, err)
	return b
}

func TestHandleIndexesPatient(t *testing.T) {
	var gotID string
	var gotDoc indexedPatient
	es := &MockElasticsearch{
		IndexFunc: func(ctx context.Context, index, id string, document interface{}) error {
			assert.Equal(t, utils.PatientIndex, index)
			gotID = id
			gotDoc = document.(indexedPatient)
			return nil
		},
	}
	c := &PatientConsumer{es: es}

	p := models.Patient{
		ID:         "p1",
		UserID:     "u1",
		Name:       "Maria",
		Status:     models.StatusScheduled,
		Procedures: []string{"protese_total"},
	}
	require.NoError(t, c.Handle(context.Background(), event(t, models.EventPatientUpdated, p)))
	assert.Equal(t, "p1", gotID)
	assert.Equal(t, "u1", gotDoc.UserID)
	assert.Equal(t, "agendado", gotDoc.Status)
	assert.Equal(t, []string{"protese_total"}, gotDoc.Procedures)
}

func TestHandleDeletesPatient(t *testing.T) {
	deleted := ""
	es := &MockElasticsearch{
		DeleteFunc: func(ctx context.Context, index, id string) error {
			deleted = id
			return nil
		},
	}
	c := &PatientConsumer{es: es}

	require.NoError(t, c.Handle(context.Background(), event(t, models.EventPatientDeleted, models.Patient{ID: "p1"})))
	assert.Equal(t, "p1", deleted)
}

func TestHandleIndexFailure(t *testing.T) {
	es := &MockElasticsearch{
		IndexFunc: func(ctx context.Context, index, id string, document interface{}) error {
			return errors.New("cluster unavailable")
		},
	}
	c := &PatientConsumer{es: es}

	err := c.Handle(context.Background(), event(t, models.EventPatientCreated, models.Patient{ID: "p1"}))
	assert.Error(t, err, "failed events are not committed")
}

func TestHandleDropsBadPayloads(t *testing.T) {
	c := &PatientConsumer{es: &MockElasticsearch{}}

	assert.NoError(t, c.Handle(context.Background(), []byte("{not json")))
	assert.NoError(t, c.Handle(context.Background(), event(t, models.EventPatientCreated, models.Patient{})))
	assert.NoError(t, c.Handle(context.Background(), event(t, "patient_archived", models.Patient{ID: "p1"})))
}
