// Package sink forwards query results to external systems.
package sink

import (
	"context"
	"errors"

	"github.com/zberg/go-vclient/pkg/vcontrold"
)

// Sink receives every successful or partial query result.
type Sink interface {
	Write(ctx context.Context, res *vcontrold.Result) error
	Close() error
}

// Multi fans a result out to several sinks. Every sink is written even when
// an earlier one fails; the errors are joined.
type Multi []Sink

func (m Multi) Write(ctx context.Context, res *vcontrold.Result) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(ctx, res); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
