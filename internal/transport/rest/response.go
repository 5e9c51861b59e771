package rest

import (
	"encoding/json"
	"log"
	"net/http"

	"debtster/internal/domain"
)

type APIResponse struct {
	ErrorCode string      `json:"error_code"`
	Status    string      `json:"status"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data"`
}

func Response(w http.ResponseWriter, message string, data interface{}, errorCode string, status string, httpStatus int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)

	response := APIResponse{
		ErrorCode: errorCode,
		Status:    status,
		Message:   message,
		Data:      data,
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("[HTTP] write response error: %v", err)
	}
}

func Success(w http.ResponseWriter, message string, data interface{}) {
	Response(w, message, data, "", "success", http.StatusOK)
}

func SuccessCreated(w http.ResponseWriter, message string, data interface{}) {
	Response(w, message, data, "", "success", http.StatusCreated)
}

func SuccessAccepted(w http.ResponseWriter, message string, data interface{}) {
	Response(w, message, data, "", "success", http.StatusAccepted)
}

func Error(w http.ResponseWriter, message string, errorCode string, httpStatus int) {
	Response(w, message, nil, errorCode, "error", httpStatus)
}

func ErrorBadRequest(w http.ResponseWriter, message string) {
	Error(w, message, "VALIDATION_ERROR", http.StatusBadRequest)
}

func ErrorUnauthorized(w http.ResponseWriter, message string) {
	Error(w, message, "UNAUTHORIZED", http.StatusUnauthorized)
}

func ErrorNotFound(w http.ResponseWriter, message string) {
	Error(w, message, "NOT_FOUND", http.StatusNotFound)
}

func ErrorInternal(w http.ResponseWriter, message string) {
	Error(w, message, "INTERNAL", http.StatusInternalServerError)
}

// ErrorFrom maps a service failure onto the envelope. Anything without a
// domain kind is treated as internal and its detail kept out of the body.
func ErrorFrom(w http.ResponseWriter, err error) {
	switch domain.KindOf(err) {
	case domain.KindValidation:
		Error(w, err.Error(), "VALIDATION_ERROR", http.StatusBadRequest)
	case domain.KindForbidden:
		Error(w, err.Error(), "FORBIDDEN", http.StatusForbidden)
	case domain.KindNotFound:
		Error(w, err.Error(), "NOT_FOUND", http.StatusNotFound)
	case domain.KindInvalidState:
		Error(w, err.Error(), "INVALID_STATE", http.StatusConflict)
	default:
		log.Printf("[HTTP] internal error: %v", err)
		ErrorInternal(w, "something went wrong")
	}
}
