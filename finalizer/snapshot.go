package finalizer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/haleterminal/gator/cloud"
	"github.com/haleterminal/gator/config"
	"github.com/haleterminal/gator/errs"
	"github.com/haleterminal/gator/plugin"
)

// snapshotSettings is the per-environment YAML block for the snapshot
// finalizer.
type snapshotSettings struct {
	NameFormat string `yaml:"name_format"`
}

func defaultSnapshotSettings() snapshotSettings {
	return snapshotSettings{NameFormat: defaultNameFormat}
}

// Snapshot is the finalizer stage that snapshots the provisioned volume,
// registers a new AMI from that snapshot, and tags both. It runs the
// SET_META -> SNAPSHOT -> REGISTER -> TAG -> DONE state machine.
type Snapshot struct {
	cfg    snapshotSettings
	cloud  cloud.Cloud
	runCtx *config.Context
	state  State
}

// NewSnapshot builds an unconfigured snapshot/tagging_ebs finalizer stage.
func NewSnapshot(cloudClient cloud.Cloud, runCtx *config.Context) *Snapshot {
	return &Snapshot{cloud: cloudClient, runCtx: runCtx, cfg: defaultSnapshotSettings()}
}

func (s *Snapshot) Configure(cfg plugin.Config) error {
	merged := defaultSnapshotSettings()
	if cfg.Raw.Kind != 0 {
		if err := cfg.Raw.Decode(&merged); err != nil {
			return fmt.Errorf("finalizer(snapshot): decode config: %w", err)
		}
	}
	s.cfg = merged
	return nil
}

func (s *Snapshot) Enabled() bool { return true }

func (s *Snapshot) setState(state State) {
	s.state = state
	slog.Info("finalizer(snapshot): state transition", "state", state)
}

// Enter does nothing beyond making the stage available to its siblings:
// the snapshot/register/tag work only makes sense after Volume and Distro
// have exited, so it runs in Finalize instead.
func (s *Snapshot) Enter(context.Context) (plugin.Stage, error) {
	return s, nil
}

func (s *Snapshot) Finalize(ctx context.Context) error {
	s.setState(StateSetMeta)
	nameOverride, _ := stringExtra(s.runCtx, "finalizer", "name_override")
	s.runCtx.AMI.Name = formatAMIName(nameOverride, s.cfg.NameFormat, s.runCtx.Package.Attributes, "-ebs")
	s.runCtx.AMI.StoreType = "ebs"
	s.runCtx.AMI.Description = fmt.Sprintf("%s installed by gator on %s", s.runCtx.Package.Name, s.runCtx.BaseAMI.ID)
	if override, ok := stringExtra(s.runCtx, "finalizer", "description_override"); ok {
		s.runCtx.AMI.Description = override
	}

	if err := publishEnv(s.runCtx, nil); err != nil {
		return &errs.FinalizeError{Step: string(s.state), Msg: err.Error()}
	}

	s.setState(StateSnapshot)
	snap, err := s.cloud.CreateSnapshot(ctx, s.runCtx.Volume.ID, s.runCtx.AMI.Description)
	if err != nil {
		return &errs.FinalizeError{Step: string(s.state), Msg: err.Error()}
	}
	s.runCtx.AMI.SnapshotID = snap.ID

	s.setState(StateRegister)
	img, err := s.cloud.RegisterImage(ctx, s.runCtx.AMI.Name, snap.ID, s.runCtx.BaseAMI.RootDevice, s.runCtx.BaseAMI.VirtType)
	if err != nil {
		return &errs.FinalizeError{Step: string(s.state), Msg: err.Error()}
	}
	s.runCtx.AMI.ID = img.ID

	s.setState(StateTag)
	tags := tagsAsCloudTags(s.runCtx)
	if len(tags) > 0 {
		if err := s.cloud.TagResources(ctx, []string{img.ID, snap.ID}, tags); err != nil {
			return &errs.FinalizeError{Step: string(s.state), Msg: err.Error()}
		}
	}

	s.setState(StateDone)
	return nil
}

func (s *Snapshot) Exit(context.Context, error) error { return nil }

var _ plugin.Finalizer = (*Snapshot)(nil)
