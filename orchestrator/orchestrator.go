// Package orchestrator drives a single provisioning run: given a stage
// chain the caller has already resolved, it enters each stage in strict
// nesting order (metrics, cloud, finalizer, volume, distro, provisioner),
// runs the package install, and unwinds whatever was successfully
// entered in LIFO order regardless of where the run failed. Grounded on
// the Python original's core.py Aminator class.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/haleterminal/gator/config"
	"github.com/haleterminal/gator/metrics"
	"github.com/haleterminal/gator/plugin"
)

// Aminator owns one provisioning run: given an already-resolved and
// already-Configure'd stage chain, it enters every stage in order and
// guarantees LIFO release of whatever was entered, even on a
// partial-acquisition failure. Resolving and configuring stages from a
// plugin.Registry is the caller's job -- main.go needs the chance to call
// Configure on each stage before Aminator ever sees it.
type Aminator struct {
	sink metrics.Sink
}

// New builds an Aminator that reports instrumentation to sink.
func New(sink metrics.Sink) *Aminator {
	return &Aminator{sink: sink}
}

// Run enters every stage in stages (one per kind, indexed as plugin.Order;
// a stage whose Enabled reports false is skipped). Stages up to and
// including Finalizer are entered first;
// Volume, Distro, and Provisioner are entered and then exited before
// Finalizer's business logic runs, so the finalizer observes the run's
// final state (a torn-down volume/chroot, package installed) rather than
// the empty context that exists before those stages ever run -- matching
// the nesting order's outermost-to-innermost acquire, innermost-first
// release, finalize-before-Cloud-disconnect contract. Whatever is still
// entered when Run returns -- cleanly or on failure -- is always unwound
// in LIFO order.
func (a *Aminator) Run(ctx context.Context, runCtx *config.Context, stages []plugin.Stage) (err error) {
	slog.Info("orchestrator: starting run", "environment", runCtx.Environment, "package", runCtx.Package.Name)

	if setErr := os.Setenv("GATOR_PACKAGE", runCtx.Package.Name); setErr != nil {
		return fmt.Errorf("orchestrator: export GATOR_PACKAGE: %w", setErr)
	}

	var entered []plugin.Stage
	var finalizerStage plugin.Stage
	siblings := make(map[string]plugin.Stage, len(stages))

	defer func() {
		if unwindErr := a.unwind(ctx, entered, err); unwindErr != nil {
			if err != nil {
				err = errors.Join(err, unwindErr)
			} else {
				err = unwindErr
			}
		}
	}()

	finalizerIdx := -1
	for i, kind := range plugin.Order {
		if kind == plugin.KindFinalizer {
			finalizerIdx = i
			break
		}
	}

	enter := func(i int) error {
		kind := plugin.Order[i]
		stage := stages[i]

		if !stage.Enabled() {
			slog.Info("orchestrator: stage disabled, skipping", "kind", kind)
			return nil
		}

		if binder, ok := stage.(plugin.Binder); ok {
			if berr := binder.Bind(siblings); berr != nil {
				return fmt.Errorf("orchestrator: bind stage %s: %w", kind, berr)
			}
		}

		return metrics.Instrument(ctx, a.sink, "stage."+string(kind)+".enter", nil, func(ctx context.Context) error {
			entered2, enterErr := stage.Enter(ctx)
			if enterErr != nil {
				return enterErr
			}
			entered = append(entered, entered2)
			siblings[string(kind)] = entered2
			if kind == plugin.KindFinalizer {
				finalizerStage = entered2
			}
			return nil
		})
	}

	// Outer ring: metrics, cloud, finalizer.
	for i := 0; i <= finalizerIdx; i++ {
		if err = enter(i); err != nil {
			return fmt.Errorf("orchestrator: enter stage %s: %w", plugin.Order[i], err)
		}
	}

	tailStart := len(entered)

	// Inner ring: volume, distro, provisioner. provisioner.Enter performs
	// the install itself, at the innermost point of the nesting.
	for i := finalizerIdx + 1; i < len(stages); i++ {
		if err = enter(i); err != nil {
			err = fmt.Errorf("orchestrator: enter stage %s: %w", plugin.Order[i], err)
			break
		}
	}

	if err == nil {
		// Leave the inner ring now so Finalize runs after Distro/Volume
		// exit, still inside Finalizer and Cloud's scope.
		tail := entered[tailStart:]
		entered = entered[:tailStart]
		if unwindErr := a.unwind(ctx, tail, err); unwindErr != nil {
			err = unwindErr
		}
	}

	if err == nil && finalizerStage != nil {
		if f, ok := finalizerStage.(plugin.Finalizer); ok {
			err = metrics.Instrument(ctx, a.sink, "stage.finalizer.finalize", nil, func(ctx context.Context) error {
				return f.Finalize(ctx)
			})
		}
	}

	return err
}

// unwind releases every entered stage in reverse order, collecting (not
// short-circuiting on) any errors encountered along the way so a failure
// releasing one resource doesn't skip releasing the rest.
func (a *Aminator) unwind(ctx context.Context, entered []plugin.Stage, runErr error) error {
	var errs []error
	for i := len(entered) - 1; i >= 0; i-- {
		stage := entered[i]
		if exitErr := metrics.Instrument(ctx, a.sink, "stage.exit", nil, func(ctx context.Context) error {
			return stage.Exit(ctx, runErr)
		}); exitErr != nil {
			slog.Error("orchestrator: error exiting stage", "error", exitErr)
			errs = append(errs, exitErr)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}
