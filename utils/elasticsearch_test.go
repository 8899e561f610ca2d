package utils

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatientQueryScopesByUser(t *testing.T) {
	q := PatientQuery("u1", "maria", 0)
	assert.Equal(t, 50, q["size"])

	raw, err := json.Marshal(q)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `{"term":{"user_id":"u1"}}`)
	assert.Contains(t, string(raw), `"minimum_should_match":1`)
}

func newFakeElasticsearch(t *testing.T, handler http.HandlerFunc) ElasticsearchClient {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodHead && r.URL.Path == "/" {
			w.WriteHeader(http.StatusOK)
			return
		}
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	client, err := NewElasticsearchClient(srv.URL)
	require.NoError(t, err)
	return client
}

func TestElasticsearchSearchReturnsSources(t *testing.T) {
	var body map[string]interface{}
	client := newFakeElasticsearch(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/patients/_search", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Write([]byte(`{"hits":{"hits":[{"_source":{"id":"p2"}},{"_source":{"id":"p1"}}]}}`))
	})

	hits, err := client.Search(context.Background(), PatientIndex, PatientQuery("u1", "maria", 10))
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.JSONEq(t, `{"id":"p2"}`, string(hits[0]))
	assert.EqualValues(t, 10, body["size"])
}

func TestElasticsearchSearchError(t *testing.T) {
	client := newFakeElasticsearch(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"parsing_exception"}`))
	})

	_, err := client.Search(context.Background(), PatientIndex, PatientQuery("u1", "x", 0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "elasticsearch error")
}

func TestElasticsearchDeleteIgnoresMissingDocument(t *testing.T) {
	client := newFakeElasticsearch(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"result":"not_found"}`))
	})

	assert.NoError(t, client.DeleteDocument(context.Background(), PatientIndex, "gone"))
}
