// Package lib provides a Go SDK for running agentbox coding tasks programmatically.
//
// This package allows applications to submit, watch, and manage autonomous
// coding tasks without shelling out to the agentbox CLI binary. It is useful
// for scripting, automation, and building tools on top of agentbox.
//
// # Quick Start
//
// Create a client, run a task and stream its progress:
//
//	client, err := lib.New(ctx, lib.Config{
//	    ModelAPIURL: "https://api.openai.com",
//	    ModelAPIKey: os.Getenv("OPENAI_API_KEY"),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	run, err := client.RunTask(ctx, lib.RunTaskOpts{
//	    RepositoryURL: "https://github.com/org/repo.git",
//	    Objective:     "Add input validation to the signup handler",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	for entry := range run.Events {
//	    fmt.Println(entry.Message)
//	}
//	<-run.Done
//	fmt.Println(run.Task().Status)
//
// # Engines
//
// The SDK supports two engine types:
//
//   - [EngineDocker]: Real isolated environments as Docker containers. Requires
//     a reachable Docker daemon and a template image with the agent runtime.
//   - [EngineFake]: In-memory fake engine for unit testing. No real
//     infrastructure needed; every task completes immediately with a simulated
//     result. Set [Config].Engine to [EngineFake] to use it.
//
// # Task Management
//
// Inspect and clean up stored tasks:
//
//	tasks, _ := client.ListTasks(ctx, nil)
//	task, _ := client.GetTask(ctx, "01J8ME")
//	client.RemoveTask(ctx, task.ID, false)
//
// # Error Handling
//
// All methods return errors that can be inspected with [errors.Is]:
//
//   - [ErrNotFound]: Resource does not exist.
//   - [ErrNotValid]: Invalid input or operation (e.g. removing a running task without force).
//   - [ErrTimeout]: A bounded wait (provisioning, command, deadline) hit its ceiling.
//
// # Testing
//
// Use [EngineFake] and a temporary database path to write tests without
// real infrastructure:
//
//	client, _ := lib.New(ctx, lib.Config{
//	    DBPath:      filepath.Join(t.TempDir(), "test.db"),
//	    Engine:      lib.EngineFake,
//	    ModelAPIURL: "http://model.test",
//	})
//	defer client.Close()
//
// # Thread Safety
//
// A [Client] is safe for concurrent use from multiple goroutines. The
// underlying storage uses SQLite, and every submitted task runs in its own
// flow goroutine.
package lib
