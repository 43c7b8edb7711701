package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/comanda/internal/actor"
	"github.com/smallbiznis/comanda/internal/authorization"
	closingdomain "github.com/smallbiznis/comanda/internal/closing/domain"
	"github.com/smallbiznis/comanda/internal/domainerr"
	"github.com/smallbiznis/comanda/internal/settlement"
	"github.com/smallbiznis/comanda/pkg/db/pagination"
)

type errorPayload struct {
	Type         string                      `json:"type"`
	Message      string                      `json:"message"`
	Errors       []domainerr.ValidationError `json:"errors,omitempty"`
	CurrentState string                      `json:"current_state,omitempty"`
	Total        *decimal.Decimal            `json:"total,omitempty"`
	OrderIDs     []string                    `json:"order_ids,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return domainerr.Invalid("request", "invalid_request", "invalid request")
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal server error"}
	}

	if details := validationDetails(err); details != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_request",
			Message: "validation error",
			Errors:  details,
		}
	}

	var illegal domainerr.IllegalTransitionError
	if errors.As(err, &illegal) {
		return http.StatusConflict, errorPayload{
			Type:         "illegal_transition",
			Message:      illegal.Error(),
			CurrentState: illegal.Current,
		}
	}

	var insufficient *settlement.InsufficientPaymentError
	if errors.As(err, &insufficient) {
		total := insufficient.Total
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "insufficient_payment",
			Message: insufficient.Error(),
			Total:   &total,
		}
	}

	var aggregation closingdomain.AggregationConflictError
	if errors.As(err, &aggregation) {
		ids := make([]string, 0, len(aggregation.OrderIDs))
		for _, id := range aggregation.OrderIDs {
			ids = append(ids, id.String())
		}
		return http.StatusConflict, errorPayload{
			Type:     "aggregation_conflict",
			Message:  "orders already belong to a closing",
			OrderIDs: ids,
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized), errors.Is(err, actor.ErrInvalidActor):
		return http.StatusUnauthorized, errorPayload{Type: "unauthorized", Message: "unauthorized"}
	case errors.Is(err, ErrForbidden), errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{Type: "forbidden", Message: "forbidden"}
	case errors.Is(err, domainerr.ErrNotFound):
		return http.StatusNotFound, errorPayload{Type: "not_found", Message: err.Error()}
	case errors.Is(err, domainerr.ErrConcurrencyConflict):
		return http.StatusConflict, errorPayload{Type: "concurrency_conflict", Message: err.Error()}
	case errors.Is(err, domainerr.ErrConflict):
		return http.StatusConflict, errorPayload{Type: "conflict", Message: err.Error()}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{Type: "rate_limited", Message: "too many requests"}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{Type: "service_unavailable", Message: "service unavailable"}
	default:
		return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal server error"}
	}
}

func validationDetails(err error) []domainerr.ValidationError {
	var many domainerr.ValidationErrors
	if errors.As(err, &many) && len(many) > 0 {
		return many
	}
	var one domainerr.ValidationError
	if errors.As(err, &one) {
		return []domainerr.ValidationError{one}
	}
	switch {
	case errors.Is(err, settlement.ErrInvalidMethod):
		return []domainerr.ValidationError{domainerr.Invalid("method", "invalid_payment_method", "unknown payment method")}
	case errors.Is(err, settlement.ErrInvalidTendered):
		return []domainerr.ValidationError{domainerr.Invalid("tendered", "invalid_amount", "tendered amount must not be negative")}
	case errors.Is(err, pagination.ErrInvalidPageToken):
		return []domainerr.ValidationError{domainerr.Invalid("page_token", "invalid_page_token", "invalid page token")}
	}
	return nil
}

// classifyErrorForLog keeps the error_type log field low-cardinality.
func classifyErrorForLog(err error) string {
	_, payload := mapError(err)
	return payload.Type
}
