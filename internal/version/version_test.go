package version

import (
	"runtime/debug"
	"testing"
)

func TestInfoString(t *testing.T) {
	tests := []struct {
		name string
		info Info
		want string
	}{
		{name: "no commit", info: Info{Version: "v1.2.0"}, want: "v1.2.0"},
		{name: "long commit", info: Info{Version: "v1.2.0", Commit: "abcdef123456"}, want: "v1.2.0 (abcdef1)"},
		{name: "short commit", info: Info{Version: "dev", Commit: "abc"}, want: "dev (abc)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.info.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFromSettings(t *testing.T) {
	info := fromSettings(Info{Version: "dev", BuildTime: "set"}, []debug.BuildSetting{
		{Key: "vcs.revision", Value: "0123456789"},
		{Key: "vcs.time", Value: "2026-01-01T00:00:00Z"},
		{Key: "GOOS", Value: "linux"},
	})
	if info.Commit != "0123456789" {
		t.Errorf("Commit = %q, want 0123456789", info.Commit)
	}
	if info.BuildTime != "set" {
		t.Errorf("BuildTime = %q, want the ldflags value", info.BuildTime)
	}
}
