package api

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rowmeta/rowmeta/internal/domain"
)

func TestHTTPStatusFromDomainError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"parse error", domain.ErrParse("syntax error", 5), http.StatusBadRequest},
		{"validation error", domain.ErrValidation("sql is required"), http.StatusBadRequest},
		{"not found", domain.ErrNotFound("no such table"), http.StatusNotFound},
		{"provisioning error", domain.ErrProvisioning("bootstrap", assert.AnError), http.StatusBadGateway},
		{"wrapped provisioning error", fmt.Errorf("rewrite: %w", domain.ErrProvisioning("trigger on public.users", assert.AnError)), http.StatusBadGateway},
		{"unknown error", assert.AnError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, httpStatusFromDomainError(tt.err))
		})
	}
}

func TestErrorBody_ParsePosition(t *testing.T) {
	body := errorBody(domain.ErrParse(`syntax error at or near "FORM"`, 15))
	assert.Equal(t, http.StatusBadRequest, body.Code)
	assert.Equal(t, 15, body.Position)

	body = errorBody(domain.ErrValidation("sql is required"))
	assert.Zero(t, body.Position)
}
