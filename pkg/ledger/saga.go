package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SagaStep is one forward action and the action that undoes it. Compensate may be nil
// for steps that leave nothing behind when they fail.
type SagaStep struct {
	Name       string
	Apply      func(ctx context.Context) error
	Compensate func(ctx context.Context) error
}

// CompensationRecorder persists compensation failures for reconciliation.
type CompensationRecorder interface {
	RecordCompensationFailure(ctx context.Context, failure CompensationFailure) error
}

// SagaRunner applies steps in order and, when one fails, compensates the applied steps
// in reverse order. Once a step has been applied the run ignores caller cancellation.
type SagaRunner struct {
	recorder    CompensationRecorder
	log         func(ctx context.Context, entry OperationLog, err error)
	nowFn       func() int64
	newID       func() string
	maxAttempts uint
	newBackOff  func() backoff.BackOff
}

// Run executes the saga named flow for referenceID.
func (runner *SagaRunner) Run(ctx context.Context, flow string, referenceID string, steps []SagaStep) error {
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "saga."+flow, trace.WithAttributes(
		attribute.String("saga.flow", flow),
		attribute.String("saga.reference_id", referenceID),
	))
	defer span.End()

	stepContext := ctx
	applied := make([]SagaStep, 0, len(steps))
	for _, step := range steps {
		if err := runner.apply(stepContext, tracer, flow, step); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, step.Name)
			if len(applied) == 0 {
				return err
			}
			return runner.compensate(context.WithoutCancel(ctx), tracer, flow, referenceID, applied, err)
		}
		applied = append(applied, step)
		stepContext = context.WithoutCancel(ctx)
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

func (runner *SagaRunner) apply(ctx context.Context, tracer trace.Tracer, flow string, step SagaStep) error {
	stepCtx, span := tracer.Start(ctx, "saga."+flow+"."+step.Name)
	defer span.End()
	if err := step.Apply(stepCtx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "apply failed")
		return err
	}
	return nil
}

func (runner *SagaRunner) compensate(ctx context.Context, tracer trace.Tracer, flow string, referenceID string, applied []SagaStep, cause error) error {
	var failures []error
	for index := len(applied) - 1; index >= 0; index-- {
		step := applied[index]
		if step.Compensate == nil {
			continue
		}
		stepCtx, span := tracer.Start(ctx, "saga."+flow+"."+step.Name+".compensate")
		_, err := backoff.Retry(stepCtx, func() (struct{}, error) {
			compensateErr := step.Compensate(stepCtx)
			if isFinalCompensationError(compensateErr) {
				return struct{}{}, backoff.Permanent(compensateErr)
			}
			return struct{}{}, compensateErr
		}, backoff.WithBackOff(runner.newBackOff()), backoff.WithMaxTries(runner.maxAttempts))
		if err != nil {
			var permanent *backoff.PermanentError
			if errors.As(err, &permanent) {
				err = permanent.Unwrap()
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, "compensation failed")
			failures = append(failures, fmt.Errorf("%s: %w", step.Name, err))
			runner.recordFailure(ctx, flow, step.Name, referenceID, cause, err)
		}
		span.End()
	}
	if len(failures) > 0 {
		return &CompensationFailedError{Flow: flow, Cause: cause, Failures: failures}
	}
	runner.log(ctx, OperationLog{
		Operation:   flow,
		ReferenceID: referenceID,
		Status:      operationStatusCompensated,
	}, cause)
	return cause
}

func (runner *SagaRunner) recordFailure(ctx context.Context, flow string, step string, referenceID string, cause error, err error) {
	runner.log(ctx, OperationLog{
		Operation:   flow,
		ReferenceID: referenceID,
		Step:        step,
		Status:      operationStatusCompensationFailed,
	}, err)
	failure := CompensationFailure{
		ID:             runner.newID(),
		Flow:           flow,
		Step:           step,
		ReferenceID:    referenceID,
		Cause:          cause.Error(),
		Error:          err.Error(),
		CreatedUnixUTC: runner.nowFn(),
	}
	if recordErr := runner.recorder.RecordCompensationFailure(ctx, failure); recordErr != nil {
		runner.log(ctx, OperationLog{
			Operation:   flow,
			ReferenceID: referenceID,
			Step:        step,
			Status:      operationStatusCompensationFailed,
		}, fmt.Errorf("record compensation failure: %w", recordErr))
	}
}

// Funds that already left a wallet, missing rows and validation failures do not heal on retry.
func isFinalCompensationError(err error) bool {
	return errors.Is(err, ErrInsufficientBalance) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrValidation)
}
