package ledger

import (
	"context"

	"github.com/cenkalti/backoff/v5"
)

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// Statuses carried by OperationLog.Status.
const (
	OperationStatusOK                 = operationStatusOK
	OperationStatusError              = operationStatusError
	OperationStatusCompensated        = operationStatusCompensated
	OperationStatusCompensationFailed = operationStatusCompensationFailed
)

// OperationLogger records domain-level events emitted by Service operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-changing wallet operation.
type OperationLog struct {
	Operation   string
	UserID      UserID
	ReferenceID string
	Amount      AmountCents
	Step        string
	Status      string
	Error       error
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
// Multiple loggers may be registered; each receives every entry.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		if logger != nil {
			service.loggers = append(service.loggers, logger)
		}
	}
}

// WithTicketCommissionPercent overrides the platform share of ticket sales.
func WithTicketCommissionPercent(percent Percent) ServiceOption {
	return func(service *Service) {
		service.ticketCommission = percent
	}
}

// WithMaxConflictAttempts bounds optimistic-concurrency retries per wallet posting.
func WithMaxConflictAttempts(attempts uint) ServiceOption {
	return func(service *Service) {
		service.maxConflictAttempts = attempts
	}
}

// WithMaxCompensationAttempts bounds retries of each compensating action.
func WithMaxCompensationAttempts(attempts uint) ServiceOption {
	return func(service *Service) {
		service.maxCompensationAttempts = attempts
	}
}

// WithRetryBackOff replaces the backoff policies used for conflict and compensation retries.
func WithRetryBackOff(newBackOff func() backoff.BackOff) ServiceOption {
	return func(service *Service) {
		service.conflictBackOff = newBackOff
		service.compensationBackOff = newBackOff
	}
}

// WithIDGenerator replaces the generator of transaction, settlement, boost and ticket ids.
func WithIDGenerator(generator func() string) ServiceOption {
	return func(service *Service) {
		service.newID = generator
	}
}

func defaultConflictBackOff() backoff.BackOff {
	exponential := backoff.NewExponentialBackOff()
	exponential.InitialInterval = conflictInitialInterval
	exponential.MaxInterval = conflictMaxInterval
	return exponential
}

func defaultCompensationBackOff() backoff.BackOff {
	exponential := backoff.NewExponentialBackOff()
	exponential.InitialInterval = compensationInitialInterval
	exponential.MaxInterval = compensationMaxInterval
	return exponential
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog, err error) {
	if entry.Status == "" {
		entry.Status = operationStatusOK
		if err != nil {
			entry.Status = operationStatusError
		}
	}
	entry.Error = err
	for _, logger := range service.loggers {
		logger.LogOperation(ctx, entry)
	}
}
