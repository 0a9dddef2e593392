// Package api is the local HTTP control surface of minutesd and the client
// the minutes CLI uses to talk to it.
//
// # Routes
//
//	GET  /api/health             daemon liveness and version
//	POST /api/tasks              submit a recording already on disk
//	POST /api/uploads            upload a recording and submit it
//	GET  /api/tasks              list every known task
//	GET  /api/tasks/{id}         status and progress of one task
//	GET  /api/tasks/{id}/result  stored meeting report
//	POST /api/tasks/cleanup      drop finished tasks older than max_age_hours
//	GET  /metrics                Prometheus exposition
//
// Unknown task ids answer 404, validation failures 400. When a bearer token
// is configured every /api route except /api/health requires it.
//
// Results are read through the registry's result store, so reports of tasks
// finished before a daemon restart are still served even though the task
// table itself is in memory.
package api
