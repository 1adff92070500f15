package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/haleterminal/gator/config"
	"github.com/haleterminal/gator/metrics"
	"github.com/haleterminal/gator/plugin"
)

type recordingStage struct {
	kind      plugin.Kind
	failEnter bool
	failExit  bool
	order     *[]string
}

func (s *recordingStage) Configure(plugin.Config) error { return nil }
func (s *recordingStage) Enabled() bool                 { return true }

func (s *recordingStage) Enter(context.Context) (plugin.Stage, error) {
	if s.failEnter {
		return nil, errors.New("enter failed: " + string(s.kind))
	}
	*s.order = append(*s.order, "enter:"+string(s.kind))
	return s, nil
}

func (s *recordingStage) Exit(context.Context, error) error {
	*s.order = append(*s.order, "exit:"+string(s.kind))
	if s.failExit {
		return errors.New("exit failed: " + string(s.kind))
	}
	return nil
}

func buildStages(order *[]string, failEnterKind plugin.Kind) []plugin.Stage {
	stages := make([]plugin.Stage, len(plugin.Order))
	for i, k := range plugin.Order {
		stages[i] = &recordingStage{kind: k, failEnter: k == failEnterKind, order: order}
	}
	return stages
}

func TestRunHappyPathEntersAndExitsInLIFOOrder(t *testing.T) {
	var order []string
	stages := buildStages(&order, "")
	a := New(metrics.NewLoggerSink(nil))

	runCtx := config.NewContext()
	runCtx.Environment = "test-env"

	if err := a.Run(context.Background(), runCtx, stages); err != nil {
		t.Fatalf("Run() = %v", err)
	}

	wantEnters := []string{
		"enter:metrics", "enter:cloud", "enter:finalizer",
		"enter:volume", "enter:distro", "enter:provisioner",
	}
	wantExits := []string{
		"exit:provisioner", "exit:distro", "exit:volume",
		"exit:finalizer", "exit:cloud", "exit:metrics",
	}
	if len(order) != len(wantEnters)+len(wantExits) {
		t.Fatalf("order = %v, want %d events", order, len(wantEnters)+len(wantExits))
	}
	for i, want := range wantEnters {
		if order[i] != want {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want)
		}
	}
	for i, want := range wantExits {
		if order[len(wantEnters)+i] != want {
			t.Errorf("order[%d] = %q, want %q", len(wantEnters)+i, order[len(wantEnters)+i], want)
		}
	}
}

func TestRunPartialAcquisitionRollsBackOnlyEnteredStages(t *testing.T) {
	var order []string
	stages := buildStages(&order, plugin.KindDistro)
	a := New(metrics.NewLoggerSink(nil))

	runCtx := config.NewContext()
	runCtx.Environment = "test-env"

	err := a.Run(context.Background(), runCtx, stages)
	if err == nil {
		t.Fatal("Run() = nil error, want error from failed distro stage")
	}

	wantOrder := []string{
		"enter:metrics", "enter:cloud", "enter:finalizer", "enter:volume",
		"exit:volume", "exit:finalizer", "exit:cloud", "exit:metrics",
	}
	if len(order) != len(wantOrder) {
		t.Fatalf("order = %v, want %v", order, wantOrder)
	}
	for i, want := range wantOrder {
		if order[i] != want {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want)
		}
	}
}
