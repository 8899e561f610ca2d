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

func TestWhatsAppSendText(t *testing.T) {
	var got sendTextReq
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewWhatsAppClient(srv.URL+"/", "inst", "tok")
	require.NoError(t, client.SendText(context.Background(), "5511999999999", "Olá"))

	assert.Equal(t, "/instances/inst/token/tok/send-text", path)
	assert.Equal(t, "5511999999999", got.Phone)
	assert.Equal(t, "Olá", got.Message)
}

func TestWhatsAppSendTextError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid phone"}`))
	}))
	defer srv.Close()

	client := NewWhatsAppClient(srv.URL, "inst", "tok")
	err := client.SendText(context.Background(), "55", "Olá")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Contains(t, err.Error(), "invalid phone")
}

func TestWhatsAppNotConfigured(t *testing.T) {
	client := NewWhatsAppClient("http://127.0.0.1:1", "", "")
	assert.Error(t, client.SendText(context.Background(), "5511999999999", "Olá"))
}
