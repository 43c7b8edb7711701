package domain

import "github.com/smallbiznis/comanda/internal/domainerr"

var ErrOrderNotFound = domainerr.NotFound("order_not_found")

// Validation codes surfaced in ValidationError.Code.
const (
	CodeRequired           = "required"
	CodeInvalidQuantity    = "invalid_quantity"
	CodeInvalidState       = "invalid_state"
	CodeProductNotFound    = "product_not_found"
	CodeProductUnavailable = "product_unavailable"
	CodeTableNotFound      = "table_not_found"
	CodeLineNotFound       = "line_not_found"
	CodeDuplicateLine      = "duplicate_line"
	CodeSettlementRequired = "settlement_required"
	CodeInvalidMethod      = "invalid_payment_method"
	CodeInvalidAmount      = "invalid_amount"
	CodeInvalidRange       = "invalid_range"
)
