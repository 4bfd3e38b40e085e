package handler

import (
	"encoding/json"
	"net/http"

	"workphone-gateway/pkg/response"

	"github.com/go-playground/validator/v10"
)

// decodeRequest reads a JSON body into v and validates it. On failure it
// writes a 400 and returns false.
func decodeRequest(w http.ResponseWriter, r *http.Request, validate *validator.Validate, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		response.ErrorCode(w, http.StatusBadRequest, "invalid_body", "Invalid request body")
		return false
	}
	if err := validate.Struct(v); err != nil {
		response.ErrorCode(w, http.StatusBadRequest, "validation_failed", err.Error())
		return false
	}
	return true
}
