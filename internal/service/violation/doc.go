// Package violation persists conflict violations produced by the eligibility
// evaluator and drives their review lifecycle.
//
// Warning and Blocking matches are stored as Pending and wait for an admin to
// Resolve or Override them; stale Pending rows are Expired by the worker.
// Advisory matches are logged only. Every final state can be copied to an
// optional archive (DynamoDB in production).
package violation
