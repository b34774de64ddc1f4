package service

import (
	"context"
	"time"

	"checkout-service/internal/util"

	"go.uber.org/zap"
)

const compensationTimeout = 10 * time.Second

type compensation struct {
	name string
	undo func(ctx context.Context) error
}

// saga records undo steps as a multi-step operation makes progress
type saga struct {
	name   string
	steps  []compensation
	logger *zap.Logger
}

func newSaga(name string, logger *zap.Logger) *saga {
	return &saga{name: name, logger: logger}
}

func (s *saga) onRollback(name string, undo func(ctx context.Context) error) {
	s.steps = append(s.steps, compensation{name: name, undo: undo})
}

// rollback runs the recorded steps newest first. It survives cancellation of
// the caller's context; a failed step is logged and the rest still run.
func (s *saga) rollback(ctx context.Context) {
	if len(s.steps) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	ctx, span := util.StartSpan(ctx, "Saga.Rollback")
	defer span.End()

	for i := len(s.steps) - 1; i >= 0; i-- {
		step := s.steps[i]
		if err := step.undo(ctx); err != nil {
			util.SagaCompensationsTotal.WithLabelValues("failed").Inc()
			s.logger.Error("Compensation step failed",
				zap.String("saga", s.name),
				zap.String("step", step.name),
				zap.Error(err))
			continue
		}
		util.SagaCompensationsTotal.WithLabelValues("success").Inc()
	}
	s.steps = nil
}
