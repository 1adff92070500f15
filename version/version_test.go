package version

import "testing"

func TestStringFallsBackToUnknownCommit(t *testing.T) {
	v := Info{}
	if got := v.String(); got != "gator unknown" {
		t.Errorf("String() = %q, want %q", got, "gator unknown")
	}
}

func TestStringIncludesCommitAndBuildTime(t *testing.T) {
	v := Info{GitCommit: "abc123", BuildTime: "2026-01-01T00:00:00Z"}
	want := "gator abc123 (built 2026-01-01T00:00:00Z)"
	if got := v.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestGetPopulatesBuildInfo(t *testing.T) {
	info := Get()
	if info.BuildInfo == nil {
		t.Error("Get().BuildInfo = nil, want populated debug.BuildInfo under `go test`")
	}
}
