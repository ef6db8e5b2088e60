// Package runtime drives the container engine behind the local backend.
//
// Supported engines:
//   - podman (preferred when present)
//   - docker
//
// Use New with a Config to select one, or leave Type as "auto" to detect
// whichever is on PATH.
//
// # Runtime Interface
//
// The Runtime interface defines the operations the local backend needs:
//   - Create, Start, Stop, Destroy: Container lifecycle
//   - IsRunning, Status: Container state queries
//   - Exec: Command execution inside containers
//   - List: Enumerate all managed containers
//
// Containers are named ContainerPrefix + sandbox id and kept alive with
// "sleep infinity" so commands can be exec'd into them.
//
// # Mock Runtime
//
// For testing, use NewMockRuntime() to create a mock implementation that can
// be configured with expected responses and used to verify command execution.
package runtime
