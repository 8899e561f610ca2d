package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"magnata-crm/dispatch"
	"magnata-crm/middleware"
	"magnata-crm/models"
	"magnata-crm/notify"
	"magnata-crm/session"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingGateway struct {
	phones []string
}

func (g *recordingGateway) SendText(ctx context.Context, phone, message string) error {
	g.phones = append(g.phones, phone)
	return nil
}

type testServer struct {
	router   *gin.Engine
	repo     *models.FileRepository
	sessions *session.Manager
	gateway  *recordingGateway
}

func newTestServer(t *testing.T, serviceKey string) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo, err := models.NewFileRepository(filepath.Join(t.TempDir(), "crm.json"))
	require.NoError(t, err)

	cfg := notify.DefaultConfig()
	cfg.PollInterval = time.Hour
	cfg.Location = time.UTC
	sessions, err := session.NewManager(context.Background(), repo, cfg, nil)
	require.NoError(t, err)
	t.Cleanup(sessions.CloseAll)

	gw := &recordingGateway{}
	router := NewRouter(Deps{
		Users:      repo,
		Sessions:   sessions,
		Tokens:     middleware.NewTokenManager("test-secret", time.Hour),
		Dispatcher: dispatch.NewDispatcher(repo, gw, nil),
		ServiceKey: serviceKey,
		Location:   time.UTC,
	})
	return &testServer{router: router, repo: repo, sessions: sessions, gateway: gw}
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) register(t *testing.T, email string) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/v1/auth/register", "", Credentials{Email: email, Password: "segredo123"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp AuthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func patientBody(name, appointment string) map[string]interface{} {
	return map[string]interface{}{
		"name":             name,
		"phone":            "(11) 99999-9999",
		"contact_date":     "2025-06-01",
		"appointment_date": appointment,
		"status":           "agendado",
		"media_origin":     "instagram",
		"procedures":       []string{"protese_total"},
	}
}

func TestAuthFlow(t *testing.T) {
	s := newTestServer(t, "")
	s.register(t, "Operador@Lab.com")

	w := s.do(t, http.MethodPost, "/api/v1/auth/register", "", Credentials{Email: "operador@lab.com", Password: "outrasenha"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "Este email já está cadastrado")

	w = s.do(t, http.MethodPost, "/api/v1/auth/register", "", Credentials{Email: "novo@lab.com", Password: "123"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "pelo menos 6 caracteres")

	w = s.do(t, http.MethodPost, "/api/v1/auth/login", "", Credentials{Email: "operador@lab.com", Password: "errada"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Email ou senha inválidos")

	w = s.do(t, http.MethodPost, "/api/v1/auth/login", "", Credentials{Email: "operador@lab.com", Password: "segredo123"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "password_hash")

	w = s.do(t, http.MethodGet, "/api/v1/patients", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/patients", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSessionExpiresWithToken(t *testing.T) {
	s := newTestServer(t, "")
	s.register(t, "operador@lab.com")

	w := s.do(t, http.MethodPost, "/api/v1/auth/login", "", Credentials{Email: "operador@lab.com", Password: "segredo123"})
	require.Equal(t, http.StatusOK, w.Code)
	var resp AuthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 1, s.sessions.Count(), "login opens the session")

	w = s.do(t, http.MethodGet, "/api/v1/patients", resp.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Zero(t, s.sessions.Sweep(resp.ExpiresAt.Add(-time.Minute)))
	assert.Equal(t, 1, s.sessions.Sweep(resp.ExpiresAt))
	assert.Zero(t, s.sessions.Count(), "engine and store released once the token expires")
}

func TestPatientCRUD(t *testing.T) {
	s := newTestServer(t, "")
	token := s.register(t, "op@lab.com")

	invalid := patientBody("", "2025-06-15")
	w := s.do(t, http.MethodPost, "/api/v1/patients", token, invalid)
	require.Equal(t, http.StatusBadRequest, w.Code)
	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &errResp))
	assert.Equal(t, CodeValidation, errResp.Code)
	assert.NotEmpty(t, errResp.Fields)

	w = s.do(t, http.MethodPost, "/api/v1/patients", token, patientBody("Maria", "2025-06-15"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created models.Patient
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)

	w = s.do(t, http.MethodPost, "/api/v1/patients", token, patientBody("João", "2025-06-16"))
	require.Equal(t, http.StatusCreated, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/patients?q=mar", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list PatientListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Equal(t, 1, list.Total)
	assert.Equal(t, "Maria", list.Patients[0].Name)

	w = s.do(t, http.MethodPatch, "/api/v1/patients/"+created.ID, token, map[string]interface{}{"status": "fechado"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "closing requires a value")

	w = s.do(t, http.MethodPatch, "/api/v1/patients/"+created.ID, token, map[string]interface{}{
		"status":       "fechado",
		"closed_value": 500,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var updated models.Patient
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	assert.Equal(t, models.StatusClosed, updated.Status)
	require.NotNil(t, updated.ClosedValue)
	assert.Equal(t, 500.0, *updated.ClosedValue)
	assert.Equal(t, "Maria", updated.Name)

	w = s.do(t, http.MethodPatch, "/api/v1/patients/"+created.ID, token, map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/patients/search?q=jo", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Total)

	w = s.do(t, http.MethodGet, "/api/v1/dashboard", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var dash DashboardResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &dash))
	assert.Equal(t, 500.0, dash.TotalRevenue)
	assert.Equal(t, 1, dash.ClosedCount)
	assert.Equal(t, 2, dash.TotalCount)

	w = s.do(t, http.MethodGet, "/api/v1/dashboard?period=bogus", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodDelete, "/api/v1/patients/"+created.ID, token, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = s.do(t, http.MethodGet, "/api/v1/patients/"+created.ID, token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = s.do(t, http.MethodDelete, "/api/v1/patients/"+created.ID, token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTenantIsolation(t *testing.T) {
	s := newTestServer(t, "")
	alice := s.register(t, "alice@lab.com")
	bob := s.register(t, "bob@lab.com")

	w := s.do(t, http.MethodPost, "/api/v1/patients", alice, patientBody("Maria", "2025-06-15"))
	require.Equal(t, http.StatusCreated, w.Code)
	var created models.Patient
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = s.do(t, http.MethodGet, "/api/v1/patients/"+created.ID, bob, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = s.do(t, http.MethodDelete, "/api/v1/patients/"+created.ID, bob, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestExportCSV(t *testing.T) {
	s := newTestServer(t, "")
	token := s.register(t, "op@lab.com")

	w := s.do(t, http.MethodGet, "/api/v1/export/csv", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	body := patientBody("Maria", "2025-06-15")
	body["observations"] = "ligar de manhã"
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/v1/patients", token, body).Code)

	w = s.do(t, http.MethodGet, "/api/v1/export/csv?observations=true", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "magnata_crm_export_")
	assert.Contains(t, w.Body.String(), "Observações")
	assert.Contains(t, w.Body.String(), `"ligar de manhã"`)

	w = s.do(t, http.MethodGet, "/api/v1/export/csv", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "Observações")

	w = s.do(t, http.MethodGet, "/api/v1/export/pdf?list=true", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(w.Body.String(), "%PDF-"))
}

func TestNotifications(t *testing.T) {
	s := newTestServer(t, "")
	token := s.register(t, "op@lab.com")

	w := s.do(t, http.MethodPost, "/api/v1/notifications/test", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Nenhum paciente agendado para amanhã")

	tomorrow := dispatch.Tomorrow(time.Now(), time.UTC)
	require.Equal(t, http.StatusCreated,
		s.do(t, http.MethodPost, "/api/v1/patients", token, patientBody("Maria", tomorrow.String())).Code)

	w = s.do(t, http.MethodPost, "/api/v1/notifications/test", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/notifications", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var snap notify.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	require.Len(t, snap.Notifications, 1)
	assert.True(t, snap.Open)
	require.NotNil(t, snap.Current)

	w = s.do(t, http.MethodPost, "/api/v1/notifications/"+snap.Current.Key+"/dismiss", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Empty(t, snap.Notifications)
	assert.False(t, snap.Open)

	w = s.do(t, http.MethodPost, "/api/v1/notifications/dismiss-all", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/auth/logout", token, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestSendReminder(t *testing.T) {
	s := newTestServer(t, "service-key")
	ctx := context.Background()

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/functions/send-reminder", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	w = s.do(t, http.MethodPost, "/api/v1/functions/send-reminder?date=2025-07-01", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	send := func(query string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/functions/send-reminder"+query, nil)
		req.Header.Set(ServiceKeyHeader, "service-key")
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)
		return w
	}

	w = send("?date=01/07/2025")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = send("?date=2025-07-01")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"No reminders to send","count":0}`, w.Body.String())

	var ids []string
	for _, name := range []string{"Ana", "Bruno", "Carla"} {
		p := models.Patient{
			UserID: "u1", Name: name, Phone: "11 9" + strings.Repeat("1", 8),
			AppointmentDate: "2025-07-01", Status: models.StatusScheduled,
		}
		require.NoError(t, s.repo.CreatePatient(ctx, &p))
		ids = append(ids, p.ID)
	}
	require.NoError(t, s.repo.CreateReminderLog(ctx, &models.ReminderLog{
		PatientID: ids[0], UserID: "u1", AppointmentDate: "2025-07-01",
		Status: models.ReminderSent, MessageType: models.MessageTypeWhatsApp,
	}))

	w = send("?date=2025-07-01")
	require.Equal(t, http.StatusOK, w.Code)
	var resp ReminderResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Reminders processed", resp.Message)
	require.Len(t, resp.Results, 2)
	for _, r := range resp.Results {
		assert.NotEqual(t, ids[0], r.PatientID)
		assert.Equal(t, models.ReminderSent, r.Status)
	}
	assert.Len(t, s.gateway.phones, 2)
}

func TestSafeMessage(t *testing.T) {
	pg := func(code string) error {
		return models.NewPersistenceError("create patient", &pgconn.PgError{Code: code, Message: "raw detail"})
	}

	assert.Equal(t, "Este registro já existe", SafeMessage(pg("23505"), MsgPatientError))
	assert.Equal(t, "Este registro está vinculado a outros dados", SafeMessage(pg("23503"), MsgPatientError))
	assert.Equal(t, "Os dados fornecidos são inválidos", SafeMessage(pg("23514"), MsgPatientError))
	assert.Equal(t, "Campos obrigatórios não foram preenchidos", SafeMessage(pg("23502"), MsgPatientError))
	assert.Equal(t, "Você não tem permissão para esta ação", SafeMessage(pg("42501"), MsgPatientError))
	assert.Equal(t, "Acesso negado", SafeMessage(pg("42503"), MsgPatientError))
	assert.Equal(t, MsgPatientError, SafeMessage(pg("99999"), MsgPatientError))

	assert.Equal(t, "Erro de conexão. Verifique sua internet",
		SafeMessage(errors.New("dial tcp 10.0.0.1:5432: connect: connection refused"), MsgPatientError))
	assert.Equal(t, "Email ou senha inválidos", SafeMessage(ErrInvalidCredentials, MsgAuthError))
	assert.Equal(t, MsgDefault, SafeMessage(nil, MsgDefault))
	assert.Equal(t, MsgPatientError, SafeMessage(errors.New("pq: column \"secret\" does not exist"), MsgPatientError))
}

func TestSendReminderWithoutGateway(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo, err := models.NewFileRepository(filepath.Join(t.TempDir(), "crm.json"))
	require.NoError(t, err)

	router := NewRouter(Deps{
		Users:      repo,
		Tokens:     middleware.NewTokenManager("test-secret", time.Hour),
		Dispatcher: dispatch.NewDispatcher(repo, nil, nil),
		Location:   time.UTC,
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/functions/send-reminder?date=2025-07-01", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Z-API credentials not configured"}`, w.Body.String())
}
