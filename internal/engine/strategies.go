// internal/engine/strategies.go
package engine

import (
	"context"

	"go.uber.org/zap"
)

// Strategy is one concrete way of attempting an action. Attempt either
// succeeds or returns the error that sends the chain to the next strategy.
type Strategy struct {
	Name    string
	Attempt func(ctx context.Context) error
}

// RunOrdered tries each strategy in sequence and returns the name of the one
// that succeeded. Every attempt's error is swallowed into the chain except
// the last, which is returned once all strategies are exhausted.
func RunOrdered(ctx context.Context, logger *zap.Logger, strategies []Strategy) (string, error) {
	var lastErr error
	for _, s := range strategies {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if err := s.Attempt(ctx); err != nil {
			logger.Debug("Strategy attempt failed.",
				zap.String("strategy", s.Name), zap.Error(err))
			lastErr = err
			continue
		}
		return s.Name, nil
	}
	return "", lastErr
}
