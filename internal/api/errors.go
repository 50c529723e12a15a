package api

import (
	"errors"
	"net/http"

	"github.com/rowmeta/rowmeta/internal/domain"
)

// ErrorBody is the JSON error envelope returned by every endpoint. Position
// is the 1-based parser cursor position for parse errors, omitted otherwise.
type ErrorBody struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Position int    `json:"position,omitempty"`
}

// httpStatusFromDomainError maps domain errors to HTTP status codes.
func httpStatusFromDomainError(err error) int {
	var parse *domain.ParseError
	var validation *domain.ValidationError
	var notFound *domain.NotFoundError
	var provisioning *domain.ProvisioningError

	switch {
	case errors.As(err, &parse):
		return http.StatusBadRequest
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &provisioning):
		// The database behind the provisioner failed, not this service.
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// errorBody builds the envelope for err, attaching the parser position when
// one is known.
func errorBody(err error) ErrorBody {
	body := ErrorBody{
		Code:    httpStatusFromDomainError(err),
		Message: err.Error(),
	}
	var parse *domain.ParseError
	if errors.As(err, &parse) {
		body.Position = parse.Position
	}
	return body
}
