package desk

import (
	"fmt"
	"net/http"

	"github.com/spec-kit/support-desk/internal/domain"
	apperrors "github.com/spec-kit/support-desk/pkg/util/errorutil"
)

// StatusChangeError reports a status change that was rolled back.
type StatusChangeError struct {
	TicketID string
	Status   domain.TicketStatus
	Err      error
}

func (e *StatusChangeError) Error() string {
	return fmt.Sprintf("changing ticket %s to %s failed: %v", e.TicketID, e.Status, e.Err)
}

func (e *StatusChangeError) Unwrap() error {
	return e.Err
}

func validationError(err error) error {
	return &apperrors.DomainError{
		Code:       apperrors.CodeValidation,
		Message:    err.Error(),
		HTTPStatus: http.StatusBadRequest,
		Err:        err,
	}
}
