package version

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func withBuild(t *testing.T, version, commit, built string, settings map[string]string) {
	t.Helper()
	oldV, oldC, oldT, oldRead := Version, GitCommit, BuildTime, readSetting
	t.Cleanup(func() {
		Version, GitCommit, BuildTime, readSetting = oldV, oldC, oldT, oldRead
	})
	Version, GitCommit, BuildTime = version, commit, built
	readSetting = func(key string) string { return settings[key] }
}

func TestVersionFromLdflags(t *testing.T) {
	withBuild(t, "v1.2.0", "0123456789abcdef", "2026-01-02T03:04:05Z", nil)

	assert.Equal(t, "v1.2.0", GetVersion())
	assert.Equal(t, "v1.2.0 (0123456)", GetShortVersion())
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), GetBuildTime())
}

func TestVersionFromBuildInfo(t *testing.T) {
	withBuild(t, "dev", "unknown", "unknown", map[string]string{
		"main.version": "(devel)",
		"vcs.revision": "fedcba9876543210",
		"vcs.time":     "2026-03-04T05:06:07Z",
		"vcs.modified": "true",
	})

	assert.Equal(t, "dev-fedcba9", GetVersion())
	assert.Equal(t, "fedcba9876543210", GetGitCommit())
	assert.Equal(t, "dev-fedcba9", GetShortVersion())

	info := GetBuildInfo()
	assert.True(t, info.Dirty)
	assert.Equal(t, 2026, info.BuildTime.Year())

	detailed := GetDetailedVersion()
	assert.True(t, strings.HasPrefix(detailed, "unify dev-fedcba9"))
	assert.Contains(t, detailed, "(dirty)")
}

func TestVersionUnknown(t *testing.T) {
	withBuild(t, "dev", "unknown", "unknown", nil)

	assert.Equal(t, "dev", GetVersion())
	assert.Equal(t, "dev", GetShortVersion())
	assert.True(t, GetBuildTime().IsZero())
	assert.NotContains(t, GetDetailedVersion(), "commit:")
}
