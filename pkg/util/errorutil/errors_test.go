package errorutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
)

func TestToDomainError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   string
		wantStatus int
	}{
		{"domain error passes through", NewConflict("dup", nil), CodeConflict, http.StatusConflict},
		{"wrapped domain error", fmt.Errorf("ctx: %w", NewNotFound("ticket", nil)), CodeNotFound, http.StatusNotFound},
		{"no rows becomes not found", pgx.ErrNoRows, CodeNotFound, http.StatusNotFound},
		{"fiber error keeps status", fiber.NewError(http.StatusForbidden, "nope"), CodeForbidden, http.StatusForbidden},
		{"unknown error is internal", errors.New("boom"), CodeInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToDomainError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", got.Code, tt.wantCode)
			}
			if got.HTTPStatus != tt.wantStatus {
				t.Errorf("HTTPStatus = %d, want %d", got.HTTPStatus, tt.wantStatus)
			}
		})
	}
}

func TestMapErrorNil(t *testing.T) {
	if err := MapError(nil); err != nil {
		t.Fatalf("MapError(nil) = %v, want nil", err)
	}
}

func TestHasCode(t *testing.T) {
	err := fmt.Errorf("create policy: %w", NewConflict("duplicate", nil))
	if !HasCode(err, CodeConflict) {
		t.Error("expected wrapped conflict to report CONFLICT")
	}
	if HasCode(errors.New("plain"), CodeConflict) {
		t.Error("plain error should not carry a code")
	}
}
