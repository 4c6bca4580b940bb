package serve

import (
	"slices"
	"testing"

	"github.com/ValentinKolb/dNet/net/common"
)

// TestServeLoggerRegistered tests that InitLoggers configures the level of the serve logger
func TestServeLoggerRegistered(t *testing.T) {
	if !slices.Contains(common.LoggerNames, "serve") {
		t.Errorf("serve logger missing from %v", common.LoggerNames)
	}
	seen := make(map[string]bool)
	for _, name := range common.LoggerNames {
		if seen[name] {
			t.Errorf("logger %q listed twice", name)
		}
		seen[name] = true
	}
}
