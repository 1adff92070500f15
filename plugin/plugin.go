// Package plugin defines the stage contract every provisioning stage
// (metrics, cloud, finalizer, volume, distro, provisioner) implements,
// and the Registry that resolves a configured stage name to its
// constructor. Grounded on the Python original's gator.plugins.base.BasePlugin
// and gator.plugins.manager.PluginManager, adapted to Go's explicit
// interface + constructor-registry idiom (the teacher's kong CLI command
// registration follows the same shape: a map from name to constructor).
package plugin

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Config is the per-stage configuration block: raw YAML the stage
// unmarshals into its own concrete type in Configure.
type Config struct {
	Raw yaml.Node
}

// Stage is the lifecycle every provisioning stage implements.
type Stage interface {
	// Configure merges cfg onto the stage's compiled defaults.
	Configure(cfg Config) error

	// Enabled reports whether this stage should run for the current
	// environment; a disabled stage is skipped entirely (no Enter/Exit).
	Enabled() bool

	// Enter acquires whatever resource this stage owns (a volume, a
	// chroot, a cloud session) and returns itself for chaining, or an
	// error if acquisition fails partway through.
	Enter(ctx context.Context) (Stage, error)

	// Exit releases the resource this stage acquired. err is the error
	// that triggered unwinding, if any; a stage that supports
	// preserve-on-error uses it to decide whether to skip cleanup.
	Exit(ctx context.Context, err error) error
}

// Binder is implemented by stages that need a non-owning reference to a
// sibling stage already on the stack. The distro stages implement it as a
// no-op: they read the volume's mountpoint from the shared config.Context
// instead.
type Binder interface {
	Bind(siblings map[string]Stage) error
}

// Finalizer is implemented by finalizer-kind stages. Enter/Exit still
// acquire and release whatever the stage owns directly (e.g. a bundle's
// scratch directory); the snapshot/bundle/register/tag business logic
// lives in Finalize, which the orchestrator calls only once every inner
// stage (Volume, Distro, Provisioner) has entered and exited -- so a
// snapshot or dd sees the run's final state rather than an empty one.
type Finalizer interface {
	Stage
	Finalize(ctx context.Context) error
}

// Kind identifies which slot in the fixed nesting order a stage fills.
type Kind string

const (
	KindMetrics     Kind = "metrics"
	KindCloud       Kind = "cloud"
	KindFinalizer   Kind = "finalizer"
	KindVolume      Kind = "volume"
	KindDistro      Kind = "distro"
	KindProvisioner Kind = "provisioner"
)

// Order is the fixed, strictly nested acquisition order every run follows.
var Order = []Kind{KindMetrics, KindCloud, KindFinalizer, KindVolume, KindDistro, KindProvisioner}

// Constructor builds a fresh, unconfigured Stage instance for a given
// plugin name.
type Constructor func() Stage

// Registry maps a (Kind, name) pair to the Constructor that builds it,
// the Go analogue of the Python original's dynamic import-by-dotted-path
// plugin loader.
type Registry struct {
	byKind map[Kind]map[string]Constructor
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byKind: make(map[Kind]map[string]Constructor)}
}

// Register adds a constructor for name under kind. Registering the same
// (kind, name) pair twice overwrites the earlier registration.
func (r *Registry) Register(kind Kind, name string, ctor Constructor) {
	if r.byKind[kind] == nil {
		r.byKind[kind] = make(map[string]Constructor)
	}
	r.byKind[kind][name] = ctor
}

// Resolve builds the Stage registered under kind/name. envConfig is a
// {kind: name} map sourced from the active environment block; Resolve
// looks up envConfig[string(kind)] and constructs that plugin.
func (r *Registry) Resolve(kind Kind, envConfig map[string]string) (Stage, error) {
	name, ok := envConfig[string(kind)]
	if !ok || name == "" {
		return nil, fmt.Errorf("plugin: no %s plugin configured for this environment", kind)
	}
	ctors, ok := r.byKind[kind]
	if !ok {
		return nil, fmt.Errorf("plugin: no plugins registered for kind %s", kind)
	}
	ctor, ok := ctors[name]
	if !ok {
		return nil, fmt.Errorf("plugin: unknown %s plugin %q", kind, name)
	}
	return ctor(), nil
}

// ResolveAll builds one Stage per entry in plugin.Order, in order,
// looking each up via envConfig.
func (r *Registry) ResolveAll(envConfig map[string]string) ([]Stage, error) {
	stages := make([]Stage, 0, len(Order))
	for _, k := range Order {
		s, err := r.Resolve(k, envConfig)
		if err != nil {
			return nil, err
		}
		stages = append(stages, s)
	}
	return stages, nil
}
