package httpapi

import (
	"errors"
	"net/http"

	"github.com/MarkoPoloResearchLab/eventledger/pkg/ledger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

// respondError maps ledger error classes onto HTTP statuses. Messages for lookups and
// conflicts are fixed strings so no other party's identifiers leak to the caller.
func (handler *httpHandler) respondError(ctx *gin.Context, operation string, err error) {
	var insufficient *ledger.InsufficientBalanceError
	switch {
	case errors.Is(err, ledger.ErrCompensationFailed):
		handler.logger.Error("operation left pending compensation", zap.String("operation", operation), zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, errorResponse("compensation_failed", "operation failed and could not be fully reverted"))
	case errors.As(err, &insufficient):
		body := errorResponse("insufficient_balance", "insufficient balance")
		body["current_balance"] = insufficient.CurrentCents.String()
		body["required_amount"] = insufficient.RequiredCents.String()
		body["missing_amount"] = insufficient.MissingCents().String()
		ctx.JSON(http.StatusUnprocessableEntity, body)
	case errors.Is(err, ledger.ErrInsufficientBalance):
		ctx.JSON(http.StatusUnprocessableEntity, errorResponse("insufficient_balance", "insufficient balance"))
	case errors.Is(err, ledger.ErrValidation):
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_request", err.Error()))
	case errors.Is(err, ledger.ErrAuthorization):
		ctx.JSON(http.StatusForbidden, errorResponse("forbidden", "not authorized"))
	case errors.Is(err, ledger.ErrNotFound):
		ctx.JSON(http.StatusNotFound, errorResponse("not_found", "resource not found"))
	case errors.Is(err, ledger.ErrStockDepleted):
		ctx.JSON(http.StatusConflict, errorResponse("stock_depleted", "ticket stock depleted"))
	case errors.Is(err, ledger.ErrAlreadySubscribed):
		ctx.JSON(http.StatusConflict, errorResponse("already_subscribed", "an active subscription already exists"))
	case errors.Is(err, ledger.ErrAlreadyProcessed):
		ctx.JSON(http.StatusConflict, errorResponse("already_processed", "already processed"))
	case errors.Is(err, ledger.ErrConcurrencyExceeded):
		ctx.JSON(http.StatusConflict, errorResponse("concurrency_conflict", "wallet is busy, retry the request"))
	default:
		handler.logger.Error("operation failed", zap.String("operation", operation), zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, errorResponse("internal_error", "internal error"))
	}
}
