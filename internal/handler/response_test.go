package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/poketrade/internal/apperror"
	"github.com/sakif/poketrade/internal/service"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		status    int
		errorType string
		message   string
		field     string
	}{
		{"validation", apperror.ValidationFailed("quantity", "Please select a quantity"),
			http.StatusBadRequest, "validation_error", "Please select a quantity", "quantity"},
		{"wrapped validation", fmt.Errorf("service/trade: %w", apperror.ValidationFailed("offered", "Offer at least one card")),
			http.StatusBadRequest, "validation_error", "Offer at least one card", "offered"},
		{"not found", apperror.NotFound("trade", "t1"),
			http.StatusNotFound, "not_found", "", ""},
		{"bare sentinel", fmt.Errorf("sqlite: %w", apperror.ErrNotFound),
			http.StatusNotFound, "not_found", "Not Found", ""},
		{"forbidden", apperror.Forbidden("Only participants can see this trade"),
			http.StatusForbidden, "forbidden", "Only participants can see this trade", ""},
		{"conflict", apperror.ConflictMessage("This request was already answered"),
			http.StatusConflict, "conflict", "This request was already answered", ""},
		{"unauthenticated", apperror.Unauthenticated("Please sign in to continue"),
			http.StatusUnauthorized, "unauthorized", "Please sign in to continue", ""},
		{"upstream", apperror.Upstream("Could not load cards. Please try again."),
			http.StatusBadGateway, "upstream_error", "Could not load cards. Please try again.", ""},
		{"unknown", errors.New("sqlite: disk I/O error at /var/lib/poketrade.db"),
			http.StatusInternalServerError, "internal_error", "An internal error occurred", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			writeError(rr, tt.err)

			assert.Equal(t, tt.status, rr.Code)
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

			var resp ErrorResponse
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
			assert.Equal(t, tt.errorType, resp.Error)
			if tt.message != "" {
				assert.Equal(t, tt.message, resp.Message)
			} else {
				assert.NotEmpty(t, resp.Message)
			}
			assert.Equal(t, tt.field, resp.Field)
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	decode := func(body string) (service.TradeProposal, error) {
		var p service.TradeProposal
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		err := decodeJSON(httptest.NewRecorder(), r, &p)
		return p, err
	}

	p, err := decode(`{"targetId":"u2","targetCard":{"cardId":"sv1-120","quantity":1},"offered":[{"cardId":"sv1-25","quantity":2}]}`)
	require.NoError(t, err)
	assert.Equal(t, "u2", p.TargetID)
	assert.Equal(t, 2, p.Offered[0].Quantity)

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"empty body", ``, ""},
		{"malformed", `{"targetId":`, ""},
		{"missing target", `{"targetCard":{"cardId":"a","quantity":1},"offered":[{"cardId":"b","quantity":1}]}`, "targetId"},
		{"no offer", `{"targetId":"u2","targetCard":{"cardId":"a","quantity":1},"offered":[]}`, "offered"},
		{"zero quantity", `{"targetId":"u2","targetCard":{"cardId":"a","quantity":0},"offered":[{"cardId":"b","quantity":1}]}`, "quantity"},
		{"offered card without id", `{"targetId":"u2","targetCard":{"cardId":"a","quantity":1},"offered":[{"quantity":1}]}`, "cardId"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decode(tt.body)
			var appErr *apperror.AppError
			require.ErrorAs(t, err, &appErr)
			assert.ErrorIs(t, err, apperror.ErrValidation)
			assert.Equal(t, tt.field, appErr.Field)
			assert.NotEmpty(t, appErr.Message)
		})
	}

	t.Run("too large", func(t *testing.T) {
		body := `{"targetId":"` + strings.Repeat("a", maxBodyBytes) + `"}`
		_, err := decode(body)
		assert.ErrorIs(t, err, apperror.ErrValidation)
	})
}
