package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/TIGERVENENO/persona-feedback-engine/internal/domain"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// decodeAndValidate decodes the request body into dst and runs struct
// tag validation over it, returning a domain.AppError(VALIDATION) on
// either a malformed body or a failed constraint.
func decodeAndValidate(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domain.NewAppError(domain.CodeValidation, "malformed request body")
	}
	if err := validate.Struct(dst); err != nil {
		return domain.NewAppError(domain.CodeValidation, err.Error())
	}
	return nil
}
