package review

import (
	"context"
	stderrors "errors"

	"github.com/Ramsey-B/clover/pkg/models"
)

// Notifier receives cluster changes after they are persisted
type Notifier interface {
	Notify(ctx context.Context, change models.ClusterChange) error
}

// Notifiers fans a change out to every notifier and joins their errors
type Notifiers []Notifier

func (n Notifiers) Notify(ctx context.Context, change models.ClusterChange) error {
	var errs []error
	for _, notifier := range n {
		if notifier == nil {
			continue
		}
		if err := notifier.Notify(ctx, change); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(ctx context.Context, change models.ClusterChange) error

func (f NotifierFunc) Notify(ctx context.Context, change models.ClusterChange) error {
	return f(ctx, change)
}
