// Package tasks tracks the lifecycle of submitted meeting analyses.
//
// The Registry keeps task state in memory and delegates finished reports to
// a durable ResultStore so results survive restarts while status does not.
// Updates for one task are serialized by a per-task mutex. A task that
// reached completed or failed is never moved back to another status.
package tasks
