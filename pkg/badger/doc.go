// Package badger stores jobs in an embedded BadgerDB database, for single
// process deployments that still want jobs to survive restarts.
//
// Key layout:
//
//	job/<id>                    JSON encoded queue.Job
//	ready/<queue>/<seq:%020d>   job ID of a pending or retrying job
//	member/<queue>/<id>         membership, used by Size and DeleteAll
//
// Claims run in a read-write transaction that walks the ready index in seq
// order. Badger detects conflicting transactions at commit; the losing claim
// retries, so a job is handed out once.
package badger
