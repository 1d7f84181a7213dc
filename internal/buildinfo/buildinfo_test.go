package buildinfo

import (
	"strings"
	"testing"
)

func TestBannerCarriesBuildMetadata(t *testing.T) {
	banner := Banner()
	for _, part := range []string{Version, Commit, BuildDate} {
		if !strings.Contains(banner, part) {
			t.Errorf("Banner() = %q, missing %q", banner, part)
		}
	}
}
