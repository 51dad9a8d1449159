package validation

import (
	"github.com/go-playground/validator/v10"

	"github.com/baechuer/real-time-ressys/services/notification-service/internal/apperrors"
	"github.com/baechuer/real-time-ressys/services/notification-service/internal/contracts"
)

var validate = validator.New()

// ValidateEventPayload enforces the wire schema: event_type and user_id are
// required, priority must be low/normal/high when present. Violations are
// INVALID_INPUT so callers drop the message instead of retrying it.
func ValidateEventPayload(p *contracts.EventPayload) error {
	if err := validate.Struct(p); err != nil {
		return apperrors.NewInvalidInput("invalid event payload: " + err.Error())
	}
	return nil
}
