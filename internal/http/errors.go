package http

import (
	"encoding/json"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/robertarktes/tour-package-bookings/internal/domain"
	"github.com/robertarktes/tour-package-bookings/internal/observability"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

var kindNames = map[error]string{
	domain.ErrValidationFailed:     "validation_failed",
	domain.ErrCapacityExceeded:     "capacity_exceeded",
	domain.ErrInvalidTransition:    "invalid_transition",
	domain.ErrNotFound:             "not_found",
	domain.ErrForbidden:            "forbidden",
	domain.ErrConflict:             "conflict",
	domain.ErrSerializationFailure: "conflict",
	domain.ErrPersistenceFailure:   "persistence_failure",
	domain.ErrNotificationFailure:  "notification_failure",
}

func statusFor(kind error) int {
	switch kind {
	case domain.ErrValidationFailed:
		return http.StatusBadRequest
	case domain.ErrForbidden:
		return http.StatusForbidden
	case domain.ErrNotFound:
		return http.StatusNotFound
	case domain.ErrCapacityExceeded, domain.ErrInvalidTransition, domain.ErrConflict, domain.ErrSerializationFailure:
		return http.StatusConflict
	case domain.ErrPersistenceFailure:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders err as {"error": kind, "message": reason}. Only the reason reaches the client;
// the full error chain is logged.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.Kind(err)
	status := statusFor(kind)
	name, ok := kindNames[kind]
	if !ok {
		name = "internal"
	}

	log := observability.LoggerFromContext(r.Context(), nil)
	if log != nil {
		if status >= http.StatusInternalServerError {
			log.WithError(err).Error("request failed")
		} else {
			log.WithField("reason", domain.Reason(err)).Debug("request rejected")
		}
	}
	writeJSON(w, status, errorBody{Error: name, Message: domain.Reason(err)})
}

func badRequest(w http.ResponseWriter, r *http.Request, format string, args ...interface{}) {
	writeError(w, r, domain.Validationf(format, args...))
}

var validate = validator.New()

// decode reads a JSON body into dst and runs its validate tags.
func decode(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domain.Validationf("malformed request body: %s", err.Error())
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return domain.Validationf("field %s failed the %s check", fe.Namespace(), fe.Tag())
		}
		return domain.Validationf("invalid request: %s", err.Error())
	}
	return nil
}
