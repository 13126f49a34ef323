// Package lifecycle starts long-lived components in order and stops them in
// reverse.
package lifecycle

import (
	"context"
	stderrors "errors"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

type Component interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Hook adapts plain functions to a Component. Either function may be nil.
type Hook struct {
	OnStart func(ctx context.Context) error
	OnStop  func(ctx context.Context) error
}

func (h Hook) Start(ctx context.Context) error {
	if h.OnStart == nil {
		return nil
	}
	return h.OnStart(ctx)
}

func (h Hook) Stop(ctx context.Context) error {
	if h.OnStop == nil {
		return nil
	}
	return h.OnStop(ctx)
}

type named struct {
	name      string
	component Component
}

type Runtime struct {
	components []named
	logger     *log.Entry
}

func NewRuntime() *Runtime {
	return &Runtime{logger: log.WithField("object", "Runtime")}
}

// Register appends a component. Nil components are ignored.
func (r *Runtime) Register(name string, component Component) {
	if component == nil {
		return
	}
	r.components = append(r.components, named{name: name, component: component})
}

// Start starts components in registration order. When one fails, the ones
// already started are stopped before the error is returned.
func (r *Runtime) Start(ctx context.Context) error {
	started := make([]named, 0, len(r.components))
	for _, c := range r.components {
		r.logger.WithField("component", c.name).Debug("starting")
		if err := c.component.Start(ctx); err != nil {
			if stopErr := r.stop(ctx, started); stopErr != nil {
				r.logger.WithField("error", stopErr.Error()).Warn("rollback failed")
			}
			return errors.WithMessagef(err, "start %s", c.name)
		}
		started = append(started, c)
	}
	return nil
}

func (r *Runtime) Stop(ctx context.Context) error {
	return r.stop(ctx, r.components)
}

func (r *Runtime) stop(ctx context.Context, components []named) error {
	var stopErr error
	for i := len(components) - 1; i >= 0; i-- {
		c := components[i]
		r.logger.WithField("component", c.name).Debug("stopping")
		if err := c.component.Stop(ctx); err != nil {
			stopErr = stderrors.Join(stopErr, errors.WithMessagef(err, "stop %s", c.name))
		}
	}
	return stopErr
}
