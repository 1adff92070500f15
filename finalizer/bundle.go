package finalizer

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/haleterminal/gator/cloud"
	"github.com/haleterminal/gator/config"
	"github.com/haleterminal/gator/errs"
	"github.com/haleterminal/gator/execrun"
	"github.com/haleterminal/gator/plugin"
)

// bundleSettings is the per-environment YAML block for the bundle
// finalizer.
type bundleSettings struct {
	NameFormat        string `yaml:"name_format"`
	Bucket            string `yaml:"bucket"`
	Prefix            string `yaml:"prefix"`
	MaxRootVolumeSize int64  `yaml:"max_root_volume_size"`
	SizeLimitMB       int64  `yaml:"size_limit_mb"`
	PartSizeMB        int64  `yaml:"part_size_mb"`
	BundleTimeout     int    `yaml:"bundle_timeout_seconds"`
}

func defaultBundleSettings() bundleSettings {
	return bundleSettings{
		NameFormat:    defaultNameFormat,
		SizeLimitMB:   10240,
		PartSizeMB:    10,
		BundleTimeout: 1800,
	}
}

// Bundle is the finalizer stage that copies the provisioned volume into
// a working directory, breaks it into a euca2ools-style bundle of
// fixed-size parts, uploads the bundle to S3, and registers/tags the
// resulting image. It runs the SET_META -> COPY -> [BREAK?] -> BUNDLE ->
// UPLOAD -> REGISTER -> TAG -> DONE state machine. The root-volume-size
// cap is checked before any subprocess runs, ahead of SET_META, since an
// operator who passed an oversize --root-volume-size shouldn't pay for a
// copy that's doomed to be rejected anyway.
type Bundle struct {
	cfg    bundleSettings
	cloud  cloud.Cloud
	runCtx *config.Context
	state  State

	workDir string
}

// NewBundle builds an unconfigured bundle/tagging_s3 finalizer stage.
func NewBundle(cloudClient cloud.Cloud, runCtx *config.Context) *Bundle {
	return &Bundle{cfg: defaultBundleSettings(), cloud: cloudClient, runCtx: runCtx}
}

func (b *Bundle) Configure(cfg plugin.Config) error {
	merged := defaultBundleSettings()
	if cfg.Raw.Kind != 0 {
		if err := cfg.Raw.Decode(&merged); err != nil {
			return fmt.Errorf("finalizer(bundle): decode config: %w", err)
		}
	}
	b.cfg = merged
	return nil
}

func (b *Bundle) Enabled() bool { return true }

func (b *Bundle) setState(state State) {
	b.state = state
	slog.Info("finalizer(bundle): state transition", "state", state)
}

// Enter only prepares the work directory: the bundle/upload/register work
// runs in Finalize, after Volume and Distro have exited.
func (b *Bundle) Enter(context.Context) (plugin.Stage, error) {
	workDir, err := os.MkdirTemp("", "gator-bundle-")
	if err != nil {
		return nil, &errs.FinalizeError{Step: "ENTER", Msg: err.Error()}
	}
	b.workDir = workDir
	return b, nil
}

func (b *Bundle) Finalize(ctx context.Context) error {
	if err := b.validateRootVolumeSize(); err != nil {
		return err
	}

	b.setState(StateSetMeta)
	nameOverride, _ := stringExtra(b.runCtx, "finalizer", "name_override")
	b.runCtx.AMI.Name = formatAMIName(nameOverride, b.cfg.NameFormat, b.runCtx.Package.Attributes, "-s3")
	b.runCtx.AMI.StoreType = "s3"
	b.runCtx.AMI.Description = fmt.Sprintf("%s installed by gator on %s", b.runCtx.Package.Name, b.runCtx.BaseAMI.ID)
	if override, ok := stringExtra(b.runCtx, "finalizer", "description_override"); ok {
		b.runCtx.AMI.Description = override
	}
	if bucket, ok := stringExtra(b.runCtx, "finalizer", "bucket_override"); ok {
		b.cfg.Bucket = bucket
	}
	if sizeLimit, ok := int64Extra(b.runCtx, "finalizer", "size_limit_override_mb"); ok {
		b.cfg.SizeLimitMB = sizeLimit
	}

	cert, _ := stringExtra(b.runCtx, "finalizer", "cert")
	privateKey, _ := stringExtra(b.runCtx, "finalizer", "privatekey")
	ec2User, _ := stringExtra(b.runCtx, "finalizer", "ec2_user")
	if tmpdir, ok := stringExtra(b.runCtx, "finalizer", "tmpdir"); ok {
		b.workDir = tmpdir
	}

	if err := publishEnv(b.runCtx, map[string]string{
		"GATOR_CERT":       cert,
		"GATOR_PRIVATEKEY": privateKey,
		"GATOR_EC2_USER":   ec2User,
		"GATOR_TMPDIR":     b.workDir,
		"GATOR_BUCKET":     b.cfg.Bucket,
	}); err != nil {
		return &errs.FinalizeError{Step: string(b.state), Msg: err.Error()}
	}

	b.setState(StateCopy)
	imagePath := filepath.Join(b.workDir, "image.img")
	sizeLimitBytes := b.cfg.SizeLimitMB * 1024 * 1024
	actualSize, err := b.copyVolumeImage(ctx, imagePath, sizeLimitBytes)
	if err != nil {
		return &errs.FinalizeError{Step: string(b.state), Msg: err.Error()}
	}
	if actualSize > sizeLimitBytes {
		return &errs.FinalizeError{
			Step: string(b.state),
			Msg:  fmt.Sprintf("volume image is %d MB, over the %d MB bundle limit", actualSize/1024/1024, b.cfg.SizeLimitMB),
		}
	}

	if boolExtra(b.runCtx, "finalizer", "break_copy_volume") {
		b.setState(StateBreak)
		if err := b.breakForInspection(ctx, imagePath); err != nil {
			return &errs.FinalizeError{Step: string(b.state), Msg: err.Error()}
		}
	}

	suffix := randSuffix()
	bundleName := b.runCtx.AMI.Name + "-" + suffix

	b.setState(StateBundle)
	manifestPath, partPaths, err := b.bundleImage(ctx, imagePath, bundleName, cert, privateKey, ec2User)
	if err != nil {
		return &errs.FinalizeError{Step: string(b.state), Msg: err.Error()}
	}

	b.setState(StateUpload)
	if err := b.cloud.UploadBundle(ctx, b.cfg.Bucket, b.cfg.Prefix, manifestPath, partPaths, true); err != nil {
		return &errs.FinalizeError{Step: string(b.state), Msg: err.Error()}
	}

	b.setState(StateRegister)
	manifestLocation := fmt.Sprintf("%s/%s.manifest.xml", b.cfg.Bucket, filepath.Join(b.cfg.Prefix, bundleName))
	img, err := b.cloud.RegisterBundledImage(ctx, b.runCtx.AMI.Name, manifestLocation, b.runCtx.BaseAMI.Architecture)
	if err != nil {
		return &errs.FinalizeError{Step: string(b.state), Msg: err.Error()}
	}
	b.runCtx.AMI.ID = img.ID

	b.setState(StateTag)
	tags := tagsAsCloudTags(b.runCtx)
	if len(tags) > 0 {
		if err := b.cloud.TagResources(ctx, []string{img.ID}, tags); err != nil {
			return &errs.FinalizeError{Step: string(b.state), Msg: err.Error()}
		}
	}

	b.setState(StateDone)
	return nil
}

// validateRootVolumeSize enforces MaxRootVolumeSize against an operator-
// supplied --root-volume-size before any subprocess runs, raising
// VolumeError rather than FinalizeError to distinguish a rejected request
// from a mid-bundle failure.
func (b *Bundle) validateRootVolumeSize() error {
	requested, ok := int64Extra(b.runCtx, "finalizer", "root_volume_size")
	if !ok || b.cfg.MaxRootVolumeSize <= 0 {
		return nil
	}
	if requested > b.cfg.MaxRootVolumeSize {
		return &errs.VolumeError{
			Msg: fmt.Sprintf("requested root volume size %d GB exceeds max_root_volume_size %d GB", requested, b.cfg.MaxRootVolumeSize),
		}
	}
	return nil
}

// copyVolumeImage dd's the provisioned device into dst, returning its
// final size in bytes.
func (b *Bundle) copyVolumeImage(ctx context.Context, dst string, sizeLimitBytes int64) (int64, error) {
	timeout := time.Duration(b.cfg.BundleTimeout) * time.Second
	res, err := execrun.Run(ctx, execrun.Argv("dd", fmt.Sprintf("if=%s", b.runCtx.Volume.DeviceName), fmt.Sprintf("of=%s", dst), "bs=65536"), timeout)
	if err != nil {
		return 0, fmt.Errorf("copy volume image: %w", err)
	}
	if !res.Success {
		return 0, fmt.Errorf("dd exited %d: %s", res.Response.StatusCode, res.Response.Stderr)
	}
	fi, err := os.Stat(dst)
	if err != nil {
		return 0, fmt.Errorf("stat copied image: %w", err)
	}
	return fi.Size(), nil
}

// breakForInspection spawns an interactive shell rooted at the work
// directory so an operator can inspect the raw copy before it's bundled,
// matching the --break-copy-volume flag's debugging use.
func (b *Bundle) breakForInspection(ctx context.Context, imagePath string) error {
	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "/bin/sh"
	}
	res, err := execrun.Run(ctx, execrun.Argv(shell), time.Duration(b.cfg.BundleTimeout)*time.Second)
	if err != nil {
		return fmt.Errorf("break-copy-volume shell at %s: %w", imagePath, err)
	}
	if !res.Success {
		return fmt.Errorf("break-copy-volume shell exited %d", res.Response.StatusCode)
	}
	return nil
}

// bundleImage shells out to euca-bundle-image over imagePath, the Go
// equivalent of the original's subprocess call: cert, private key, user,
// architecture, kernel/ramdisk (for paravirtual instances), and a block
// device map are all forwarded exactly as euca-bundle-image expects them.
func (b *Bundle) bundleImage(ctx context.Context, imagePath, bundleName, cert, privateKey, ec2User string) (manifestPath string, partPaths []string, err error) {
	timeout := time.Duration(b.cfg.BundleTimeout) * time.Second

	args := []string{
		"--cert", cert,
		"--privatekey", privateKey,
		"--user", ec2User,
		"--image", imagePath,
		"--destination", b.workDir,
		"--prefix", bundleName,
		"--arch", b.runCtx.BaseAMI.Architecture,
	}
	if b.runCtx.BaseAMI.KernelID != "" {
		args = append(args, "--kernel", b.runCtx.BaseAMI.KernelID)
	}
	if b.runCtx.BaseAMI.RamdiskID != "" {
		args = append(args, "--ramdisk", b.runCtx.BaseAMI.RamdiskID)
	}
	args = append(args, "--block-device-mapping", b.blockDeviceMap())

	res, err := execrun.Run(ctx, execrun.Argv("euca-bundle-image", args...), timeout)
	if err != nil {
		return "", nil, fmt.Errorf("bundle image: %w", err)
	}
	if !res.Success {
		return "", nil, fmt.Errorf("euca-bundle-image exited %d: %s", res.Response.StatusCode, res.Response.Stderr)
	}

	manifestPath = filepath.Join(b.workDir, bundleName+".manifest.xml")
	entries, err := os.ReadDir(b.workDir)
	if err != nil {
		return "", nil, fmt.Errorf("list bundle parts: %w", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), bundleName+".part.") {
			partPaths = append(partPaths, filepath.Join(b.workDir, e.Name()))
		}
	}
	return manifestPath, partPaths, nil
}

// blockDeviceMap builds the "root=<dev>,ami=<dev>" block-device-map
// string euca-bundle-image expects, rooted at the device the volume
// stage attached. No extra ephemeral/swap mappings are exposed: gator's
// provisioned volume is a single root device, so there are no additional
// letters to enumerate.
func (b *Bundle) blockDeviceMap() string {
	root := b.runCtx.BaseAMI.RootDevice
	return fmt.Sprintf("root=%s,ami=%s", root, root)
}

// randSuffix returns a 6-character hex suffix, matching euca-bundle's
// "<name>-<rand6>" manifest naming.
func randSuffix() string {
	buf := make([]byte, 3)
	if _, err := rand.Read(buf); err != nil {
		return strconv.FormatInt(time.Now().UnixNano()%0xffffff, 16)
	}
	return hex.EncodeToString(buf)
}

func (b *Bundle) Exit(_ context.Context, _ error) error {
	if b.workDir != "" {
		if err := os.RemoveAll(b.workDir); err != nil {
			slog.Warn("finalizer(bundle): error cleaning up work dir", "dir", b.workDir, "error", err)
		}
	}
	return nil
}

var _ plugin.Finalizer = (*Bundle)(nil)
