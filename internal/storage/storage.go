package storage

import (
	"context"
	"errors"

	"liquidityDesk/internal/model"
)

// Journal is an append-only sink for settled flow steps.
type Journal interface {
	Append(ctx context.Context, rec model.StepRecord) error
}

// Multi fans a record out to several journals. Every journal is tried.
type Multi []Journal

func (m Multi) Append(ctx context.Context, rec model.StepRecord) error {
	var errs []error
	for _, j := range m {
		if err := j.Append(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
