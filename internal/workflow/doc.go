// Package workflow runs submitted recordings as background tasks.
//
// The Manager validates a submission, registers a task in the registry and
// starts a goroutine for it. A semaphore bounds how many pipeline runs
// execute at once; tasks waiting for a slot stay pending. Each run builds a
// fresh pipeline from the Factory, forwards pipeline progress into the
// registry, and finishes by saving the report and marking the task
// completed, or by marking it failed with a readable error. Saving the
// report and updating the status are independent: a failed save is logged
// and counted but never turns a completed run into a failed task.
//
// Every run carries its task id and a fresh request id on its context and
// mirrors its log output into a per-task file under <log_dir>/tasks.
package workflow
