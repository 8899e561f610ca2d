package handlers

import (
	"errors"
	"net/http"
	"strings"

	"magnata-crm/models"

	"github.com/gin-gonic/gin"
)

const (
	CodeValidation   = "VALIDATION_ERROR"
	CodeNotFound     = "NOT_FOUND"
	CodePersistence  = "PERSISTENCE_ERROR"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeConflict     = "CONFLICT"
	CodeBadRequest   = "BAD_REQUEST"
	CodeInternal     = "INTERNAL_ERROR"
	CodeUnavailable  = "SERVICE_UNAVAILABLE"
)

const (
	MsgDefault      = "Ocorreu um erro. Tente novamente."
	MsgPatientError = "Erro ao processar dados do paciente"
	MsgAuthError    = "Erro de autenticação"
	msgConnection   = "Erro de conexão. Verifique sua internet"
)

type ErrorResponse struct {
	Error   string              `json:"error"`
	Message string              `json:"message,omitempty"`
	Code    string              `json:"code,omitempty"`
	Fields  []models.FieldError `json:"fields,omitempty"`
}

var pgMessages = map[string]string{
	"23505": "Este registro já existe",
	"23503": "Este registro está vinculado a outros dados",
	"23514": "Os dados fornecidos são inválidos",
	"23502": "Campos obrigatórios não foram preenchidos",
	"42501": "Você não tem permissão para esta ação",
	"42503": "Acesso negado",
}

// SafeMessage maps err to a short pt-BR message for the operator. Raw backend
// detail never leaves this function; unknown errors get fallback.
func SafeMessage(err error, fallback string) string {
	if err == nil {
		return fallback
	}

	var perr *models.PersistenceError
	if errors.As(err, &perr) && perr.Code != "" {
		if msg, ok := pgMessages[perr.Code]; ok {
			return msg
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "invalid login credentials"):
		return "Email ou senha inválidos"
	case strings.Contains(msg, "user already registered"):
		return "Este email já está cadastrado"
	case strings.Contains(msg, "password should be at least"):
		return "A senha deve ter pelo menos 6 caracteres"
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "too many"):
		return "Muitas tentativas. Aguarde um momento"
	case strings.Contains(msg, "network"),
		strings.Contains(msg, "fetch"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "i/o timeout"),
		strings.Contains(msg, "no such host"):
		return msgConnection
	}
	return fallback
}

func SendError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    code,
	})
}

// sendStoreError writes the response for an error returned by the patient
// store. Server-side failures are attached to the context for reporting.
func sendStoreError(c *gin.Context, err error) {
	var verr *models.ValidationError
	var perr *models.PersistenceError

	switch {
	case errors.As(err, &verr):
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
			Error:   http.StatusText(http.StatusBadRequest),
			Message: "Os dados fornecidos são inválidos",
			Code:    CodeValidation,
			Fields:  verr.Fields,
		})
	case errors.Is(err, models.ErrNotFound):
		SendError(c, http.StatusNotFound, CodeNotFound, "Paciente não encontrado")
	case errors.As(err, &perr) && perr.Code == "23505":
		SendError(c, http.StatusConflict, CodeConflict, SafeMessage(err, MsgPatientError))
	default:
		_ = c.Error(err)
		SendError(c, http.StatusInternalServerError, CodePersistence, SafeMessage(err, MsgPatientError))
	}
}
