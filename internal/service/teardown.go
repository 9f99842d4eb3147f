package service

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	StepDestroy      = "destroy"
	StepUndefine     = "undefine"
	StepRemoveImage  = "remove_image"
	StepReleasePorts = "release_ports"
)

type teardownStep struct {
	name string
	skip bool
	run  func(ctx context.Context) error
}

func (s *VMService) destroyStep(vm *VM) teardownStep {
	return teardownStep{name: StepDestroy, run: func(ctx context.Context) error {
		return s.hypervisor.Destroy(ctx, vm.Host, vm.Name)
	}}
}

func (s *VMService) undefineStep(vm *VM) teardownStep {
	return teardownStep{name: StepUndefine, run: func(ctx context.Context) error {
		return s.hypervisor.Undefine(ctx, vm.Host, vm.Name)
	}}
}

func (s *VMService) removeImageStep(vm *VM) teardownStep {
	return teardownStep{name: StepRemoveImage, run: func(ctx context.Context) error {
		return s.disks.Remove(ctx, vm.Host, vm.Name)
	}}
}

func (s *VMService) releasePortsStep(vm *VM) teardownStep {
	return teardownStep{name: StepReleasePorts, run: func(ctx context.Context) error {
		return s.registry.Delete(ctx, vm.Host, vm.Name)
	}}
}

// runSteps executes every step in order, whatever the outcome of the
// previous ones. Teardown outlives the caller's cancellation.
func (s *VMService) runSteps(ctx context.Context, log *slog.Logger, steps []teardownStep) []StepResult {
	ctx = context.WithoutCancel(ctx)

	results := make([]StepResult, 0, len(steps))
	for _, step := range steps {
		if step.skip {
			log.Debug("teardown step skipped", slog.String("step", step.name))
			results = append(results, StepResult{Step: step.name, Skipped: true})
			continue
		}

		err := step.run(ctx)
		if err != nil {
			log.Warn("teardown step failed",
				slog.String("step", step.name),
				slog.String("error", err.Error()),
			)
			s.teardownFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("step", step.name)))
		}
		results = append(results, StepResult{Step: step.name, Err: err})
	}
	return results
}

// rollback undoes a partial create, most recent step first.
func (s *VMService) rollback(ctx context.Context, log *slog.Logger, undo []teardownStep) {
	reversed := make([]teardownStep, 0, len(undo))
	for i := len(undo) - 1; i >= 0; i-- {
		reversed = append(reversed, undo[i])
	}

	failed := 0
	for _, r := range s.runSteps(ctx, log, reversed) {
		if r.Err != nil {
			failed++
		}
	}
	log.Info("rollback finished", slog.Int("steps", len(reversed)), slog.Int("failed", failed))
}
