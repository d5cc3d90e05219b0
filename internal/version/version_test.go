package version

import (
	"strings"
	"testing"
)

func TestShort(t *testing.T) {
	tests := []struct {
		name string
		info Info
		want string
	}{
		{"dev build", Info{Version: "dev", GitCommit: "unknown"}, "dev"},
		{"empty commit", Info{Version: "1.0.0"}, "1.0.0"},
		{"long commit", Info{Version: "1.2.0", GitCommit: "a1b2c3d4e5f6", Platform: "linux/arm64"}, "1.2.0 (a1b2c3d, linux/arm64)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.info.Short(); got != tt.want {
				t.Errorf("Short() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGet(t *testing.T) {
	info := Get()
	if info.Version != Version || !strings.HasPrefix(info.GoVersion, "go") || !strings.Contains(info.Platform, "/") {
		t.Errorf("Get() = %+v", info)
	}
}
