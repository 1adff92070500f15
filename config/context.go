// Package config holds the typed run context every stage reads and
// writes, the per-environment plugin configuration, and the CLI entry
// point built on kong. Grounded on the Python original's core.py, which
// threads a nested dict through every plugin call; Go replaces that with
// a single typed Context struct each stage can address by field instead
// of by string key path.
package config

// PackageInfo names the thing gator is provisioning a package manager
// install for.
type PackageInfo struct {
	Name    string
	Version string

	// Attributes holds the package manager's reported metadata for the
	// installed package (name, version, release, architecture, ...),
	// keyed by attribute name. The provisioner populates it after
	// install; a configured attribute key the query didn't return is
	// stored as the empty string rather than omitted, so a finalizer's
	// name_format template always has every key it references.
	Attributes map[string]string
}

// VolumeInfo is populated by the volume stage once it attaches a device,
// and consumed by the distro stage to know where to mount it. It
// persists unchanged once the volume stage exits: the finalizer reads
// ID/DeviceName after Volume has already detached and deleted the
// underlying volume, matching the original's context dict, which is
// never cleared on scope exit.
type VolumeInfo struct {
	ID         string
	DeviceName string
	Mountpoint string
	SizeGB     int64
}

// AMIInfo is populated by the finalizer stage as it progresses through
// its state machine.
type AMIInfo struct {
	Name        string
	Description string
	ID          string
	SnapshotID  string

	// StoreType is "ebs" or "s3", published to hooks as GATOR_STORE_TYPE.
	StoreType string
}

// BaseAMIInfo describes the source image being provisioned from.
type BaseAMIInfo struct {
	ID           string
	RootDevice   string
	VirtType     string
	Architecture string
	KernelID     string
	RamdiskID    string
}

// Context is the single typed record threaded through every stage's
// Enter/Exit. Each sub-struct is owned by exactly one stage that writes
// to it; every other stage only reads.
type Context struct {
	Package         PackageInfo
	Volume          VolumeInfo
	AMI             AMIInfo
	BaseAMI         BaseAMIInfo
	Environment     string
	PreserveOnError bool

	// Tags is the operator-supplied ordered list of cloud resource tags,
	// applied to every taggable resource the finalizer creates, in the
	// order given: EC2 and S3 both surface tags in creation order in
	// their consoles, and gator preserves operator intent instead of
	// resorting them.
	Tags []Tag

	// Extra carries command-line overrides that don't have a dedicated
	// Context field, keyed by plugin kind then setting name (for example
	// Extra["finalizer"]["name_override"]).
	Extra map[string]map[string]any
}

// Tag is a single cloud resource tag.
type Tag struct {
	Key   string
	Value string
}

// NewContext returns a Context with Extra and Package.Attributes
// initialized.
func NewContext() *Context {
	return &Context{
		Package: PackageInfo{Attributes: make(map[string]string)},
		Extra:   make(map[string]map[string]any),
	}
}
