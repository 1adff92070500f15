package provisioner

import (
	"testing"

	"github.com/haleterminal/gator/config"
)

func TestRequestedName(t *testing.T) {
	cases := []struct {
		pkg  config.PackageInfo
		want string
	}{
		{config.PackageInfo{Name: "nginx"}, "nginx"},
		{config.PackageInfo{Name: "nginx", Version: "1.18.0"}, "nginx-1.18.0"},
	}
	for _, c := range cases {
		if got := requestedName(c.pkg); got != c.want {
			t.Errorf("requestedName(%+v) = %q, want %q", c.pkg, got, c.want)
		}
	}
}

func TestDefaultSettings(t *testing.T) {
	s := defaultSettings()
	if !s.RefreshMetadata {
		t.Error("RefreshMetadata default = false, want true")
	}
	if s.TimeoutSeconds != 600 {
		t.Errorf("TimeoutSeconds default = %d, want 600", s.TimeoutSeconds)
	}
}
