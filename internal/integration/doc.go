// Package integration provides a test harness for integration tests
// that require actual container runtime support.
//
// Integration tests are skipped unless FABRIC_INTEGRATION_TESTS=1. They
// require a responsive docker or podman engine; FABRIC_LOCAL_IMAGE picks
// the image (it needs sh and bash).
//
// # Test Harness
//
// TestHarness wires an App to the real runtime and an in-memory cloud
// backend:
//
//	func TestMyIntegration(t *testing.T) {
//	    h := integration.NewHarness(t) // Skips if env var not set
//
//	    s := h.StartSession("my-session")
//	    if err := s.DelegateToCloud(ctx); err != nil {
//	        t.Fatal(err)
//	    }
//
//	    // Cleanup is automatic via t.Cleanup
//	}
//
// # Running Integration Tests
//
//	FABRIC_INTEGRATION_TESTS=1 go test -v ./internal/integration/...
package integration
