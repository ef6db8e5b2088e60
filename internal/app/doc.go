// Package app provides the application context for fabric.
//
// This package manages application-wide dependencies using the functional
// options pattern, enabling easy testing through dependency injection.
//
// # App Context
//
// New builds, from a *config.Config:
//
//   - the container Runtime (auto-detected unless injected)
//   - a handoff.Manager with the memory backend, the local container
//     backend when a runtime is available, and the remote backend when
//     [cloud] url is set
//   - the checkpoint store, the audit logger and the metrics registry
//
// # Creating an App
//
//	// Production usage
//	cfg, err := config.Load("")
//	a := app.New(app.WithConfig(cfg))
//	defer a.Close()
//
//	// Testing with custom dependencies
//	a := app.New(
//	    app.WithConfig(testConfig),
//	    app.WithRuntime(runtime.NewMockRuntime()),
//	    app.WithFactory(sandbox.BackendCloud, memory.NewFactory(opts)),
//	)
//
// Sessions created with NewSession or Attach write their events to the
// audit log and the metrics registry. Close writes the metrics textfile.
package app
