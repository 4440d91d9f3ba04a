package oplog

import (
	"context"

	"github.com/MarkoPoloResearchLab/eventledger/pkg/ledger"
	"go.uber.org/zap"
)

// ZapLogger writes ledger operation logs as structured zap entries.
type ZapLogger struct {
	logger *zap.Logger
}

// New returns a ZapLogger. A nil logger yields a no-op logger.
func New(logger *zap.Logger) *ZapLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapLogger{logger: logger}
}

func (zapLogger *ZapLogger) LogOperation(_ context.Context, entry ledger.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("status", entry.Status),
		zap.Int64("amount_cents", entry.Amount.Int64()),
	}
	if !entry.UserID.IsZero() {
		fields = append(fields, zap.String("user_id", entry.UserID.String()))
	}
	if entry.ReferenceID != "" {
		fields = append(fields, zap.String("reference_id", entry.ReferenceID))
	}
	if entry.Step != "" {
		fields = append(fields, zap.String("step", entry.Step))
	}
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
	}

	switch {
	case entry.Status == ledger.OperationStatusCompensationFailed:
		zapLogger.logger.Error("ledger compensation failed", fields...)
	case entry.Error != nil:
		zapLogger.logger.Warn("ledger operation failed", fields...)
	default:
		zapLogger.logger.Info("ledger operation", fields...)
	}
}
