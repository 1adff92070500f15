// Package finalizer implements the finalizer stage: the state machine
// that turns a provisioned volume into a registered, tagged machine
// image, either by EBS snapshot (the snapshot/tagging_ebs variant) or by
// filesystem bundle upload to S3 (the bundle/tagging_s3 variant).
// Grounded on the Python original's gator.plugins.finalizer.{base,
// tagging_ebs,tagging_s3} trio.
package finalizer

import (
	"fmt"
	"os"
	"strings"

	"github.com/haleterminal/gator/cloud"
	"github.com/haleterminal/gator/config"
	"github.com/haleterminal/gator/fsprep"
)

// defaultNameFormat is the name_format template applied when an
// environment's finalizer config doesn't set one: package name, version,
// release, architecture, in that order.
const defaultNameFormat = "{name}-{version}-{release}-{architecture}"

// State names one step of a finalizer's state machine, logged at every
// transition so a stuck run's last-known state is visible in the logs.
type State string

const (
	StateSetMeta  State = "SET_META"
	StateSnapshot State = "SNAPSHOT"
	StateCopy     State = "COPY"
	StateBreak    State = "BREAK"
	StateBundle   State = "BUNDLE"
	StateUpload   State = "UPLOAD"
	StateRegister State = "REGISTER"
	StateTag      State = "TAG"
	StateDone     State = "DONE"
)

// nameForAMI sanitizes name to the character set AMI/snapshot/image
// registries accept.
func nameForAMI(name string) string {
	return fsprep.SanitizeMetadata(name)
}

// expandNameFormat replaces every "{key}" placeholder in format with
// attributes[key], the Go equivalent of the Python original's
// config.name_format.format(**attributes).
func expandNameFormat(format string, attributes map[string]string) string {
	var b strings.Builder
	for i := 0; i < len(format); i++ {
		if format[i] == '{' {
			if end := strings.IndexByte(format[i:], '}'); end >= 0 {
				key := format[i+1 : i+end]
				b.WriteString(attributes[key])
				i += end
				continue
			}
		}
		b.WriteByte(format[i])
	}
	return b.String()
}

// formatAMIName builds the name a finalizer registers the image under:
// an operator-supplied --name override is used verbatim if present,
// otherwise format is expanded against attributes; either way the result
// is sanitized and the store-type suffix ("-ebs" or "-s3") appended.
func formatAMIName(nameOverride, format string, attributes map[string]string, suffix string) string {
	name := nameOverride
	if name == "" {
		name = expandNameFormat(format, attributes)
	}
	return nameForAMI(name) + suffix
}

// publishEnv sets the GATOR_* environment variables that hook scripts
// (e.g. a finalizer's pre/post-register script) read to find out what
// gator just built, matching the Python original's GATOR_* env
// convention for shelling out to operator-supplied hooks. extra adds the
// bundle-only variables (GATOR_CERT, GATOR_PRIVATEKEY, GATOR_EC2_USER,
// GATOR_TMPDIR, GATOR_BUCKET); the snapshot finalizer passes nil.
// GATOR_PACKAGE is published by the orchestrator, not here.
func publishEnv(ctx *config.Context, extra map[string]string) error {
	vars := map[string]string{
		"GATOR_STORE_TYPE": ctx.AMI.StoreType,
		"GATOR_AMI_NAME":   ctx.AMI.Name,
	}
	for k, v := range extra {
		vars[k] = v
	}
	for k, v := range vars {
		if err := os.Setenv(k, v); err != nil {
			return fmt.Errorf("finalizer: set %s: %w", k, err)
		}
	}
	return nil
}

// tagsAsCloudTags converts ctx.Tags into the shape cloud.Cloud expects,
// preserving operator-supplied order.
func tagsAsCloudTags(ctx *config.Context) []cloud.Tag {
	out := make([]cloud.Tag, len(ctx.Tags))
	for i, t := range ctx.Tags {
		out[i] = cloud.Tag{Key: t.Key, Value: t.Value}
	}
	return out
}

// stringExtra reads a string override out of ctx.Extra[kind][key], set by
// the CLI's per-finalizer flags. ok is false when no override was given.
func stringExtra(ctx *config.Context, kind, key string) (string, bool) {
	v, ok := ctx.Extra[kind][key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// int64Extra reads an int64 override out of ctx.Extra[kind][key].
func int64Extra(ctx *config.Context, kind, key string) (int64, bool) {
	v, ok := ctx.Extra[kind][key]
	if !ok {
		return 0, false
	}
	n, ok := v.(int64)
	if !ok || n == 0 {
		return 0, false
	}
	return n, true
}

// boolExtra reads a bool override out of ctx.Extra[kind][key].
func boolExtra(ctx *config.Context, kind, key string) bool {
	v, ok := ctx.Extra[kind][key]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}
