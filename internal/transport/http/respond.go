package http

import (
	"encoding/json"
	"net/http"

	domainerrors "storyledger/pkg/domain-errors"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, err error) {
	code := domainerrors.CodeOf(err)
	writeJSON(w, statusFor(code), errorBody{Error: err.Error(), Code: string(code)})
}

func statusFor(code domainerrors.Code) int {
	switch code {
	case domainerrors.CodeBadRequest, domainerrors.CodeValidation:
		return http.StatusBadRequest
	case domainerrors.CodeNotFound:
		return http.StatusNotFound
	case domainerrors.CodeForbidden:
		return http.StatusForbidden
	case domainerrors.CodeConflict:
		return http.StatusConflict
	case domainerrors.CodeUnavailable:
		return http.StatusServiceUnavailable
	case domainerrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
