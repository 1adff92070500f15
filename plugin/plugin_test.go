package plugin

import (
	"context"
	"testing"
)

type fakeStage struct {
	name    string
	entered bool
	exited  bool
}

func (s *fakeStage) Configure(Config) error { return nil }
func (s *fakeStage) Enabled() bool          { return true }
func (s *fakeStage) Enter(context.Context) (Stage, error) {
	s.entered = true
	return s, nil
}
func (s *fakeStage) Exit(context.Context, error) error {
	s.exited = true
	return nil
}

func TestRegistryResolve(t *testing.T) {
	r := NewRegistry()
	r.Register(KindVolume, "linux", func() Stage { return &fakeStage{name: "linux"} })

	s, err := r.Resolve(KindVolume, map[string]string{"volume": "linux"})
	if err != nil {
		t.Fatalf("Resolve() = %v", err)
	}
	if s.(*fakeStage).name != "linux" {
		t.Fatalf("resolved wrong stage: %+v", s)
	}
}

func TestRegistryResolveUnknownName(t *testing.T) {
	r := NewRegistry()
	r.Register(KindVolume, "linux", func() Stage { return &fakeStage{} })

	if _, err := r.Resolve(KindVolume, map[string]string{"volume": "bogus"}); err == nil {
		t.Fatal("Resolve() = nil error, want error for unregistered name")
	}
}

func TestRegistryResolveMissingEntry(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Resolve(KindCloud, map[string]string{}); err == nil {
		t.Fatal("Resolve() = nil error, want error for missing env config entry")
	}
}

func TestRegistryResolveAllOrder(t *testing.T) {
	r := NewRegistry()
	for _, k := range Order {
		k := k
		r.Register(k, "default", func() Stage { return &fakeStage{name: string(k)} })
	}
	envConfig := map[string]string{}
	for _, k := range Order {
		envConfig[string(k)] = "default"
	}

	stages, err := r.ResolveAll(envConfig)
	if err != nil {
		t.Fatalf("ResolveAll() = %v", err)
	}
	if len(stages) != len(Order) {
		t.Fatalf("len(stages) = %d, want %d", len(stages), len(Order))
	}
	for i, k := range Order {
		if stages[i].(*fakeStage).name != string(k) {
			t.Errorf("stages[%d] = %+v, want kind %s", i, stages[i], k)
		}
	}
}
