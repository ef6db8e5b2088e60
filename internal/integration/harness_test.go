package integration

import (
	"testing"
)

// TestHarnessSkipsWhenDisabled verifies that the harness skips tests
// when FABRIC_INTEGRATION_TESTS is not set.
func TestHarnessSkipsWhenDisabled(t *testing.T) {
	t.Setenv(EnvVar, "")

	ran := false
	t.Run("harness", func(t *testing.T) {
		NewHarness(t)
		ran = true
	})
	if ran {
		t.Error("NewHarness should skip when integration tests are disabled")
	}
}
