// Package headless runs a container tree to completion without a UI.
//
// The executor is what the `harvest run` command uses in cron jobs and CI
// pipelines. It initializes the root container against a driver, follows
// the event stream of every container that joins the tree, and stops when
// the root's task completes, the root fails, the timeout expires or the
// caller cancels.
//
// Architecture:
//
//	┌─────────────────────────────────────────────────────────┐
//	│                 Headless Executor                       │
//	│  - Timeout and cancellation                             │
//	│  - Console progress (quiet/normal/verbose/debug)        │
//	│  - Artifact generation                                  │
//	└──────────────────┬──────────────────────────────────────┘
//	                   │ Initialize / Subscribe / Cleanup
//	                   ▼
//	        ┌──────────────────────┐
//	        │  container.Container │──▶ children
//	        └──────────────────────┘
//
// When the run ends, a ContainerReport tree is captured before cleanup and
// written as execution.json, items.json and summary.md under the configured
// output directory.
//
// Without a completion criterion on the root, the timeout acts as an
// observation window and reaching it counts as success.
//
// Usage:
//
//	exec, err := headless.NewExecutor(root, driver, headless.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	summary, err := exec.Run(ctx)
package headless
