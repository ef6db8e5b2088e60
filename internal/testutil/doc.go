// Package testutil provides test fixtures and utilities.
//
// # Fixtures
//
// Fixtures are embedded using go:embed:
//
//	fixtures/valid_config.toml
//	fixtures/invalid_config.toml
//	fixtures/valid_session.json
//	fixtures/valid_checkpoint.json
//
// Helper functions load and parse them into typed values:
//
//	cfg, err := testutil.ValidConfig()
//	rec, err := testutil.ValidSession()
//	cp, err := testutil.ValidCheckpoint()
//
// # Test Environment
//
// NewTestEnv builds an App over a temporary state directory, a mock
// container runtime for the local backend and an in-memory cloud backend:
//
//	func TestDelegate(t *testing.T) {
//	    env := testutil.NewTestEnv(t)
//	    s := env.StartSession("demo")
//	    if err := s.DelegateToCloud(context.Background()); err != nil {
//	        t.Fatal(err)
//	    }
//	}
package testutil
