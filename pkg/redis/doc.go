// Package redis stores jobs and rate limiter windows in Redis through
// go-redis/v9.
//
// Each job is a hash under <prefix>:job:<id>. A queue keeps a sorted set of
// claimable job IDs scored by sequence number and a set of all its job IDs.
// Claims and state transitions run as Lua scripts, so a job is handed to one
// worker only even when many processes share the server. RateStorage keeps
// starts in a sorted set per limiter name scored by time.
//
// Scripts touch job hashes whose names are derived inside the script, which
// rules out Redis Cluster; use a single primary.
//
// Integration tests run only when JOBKIT_TEST_REDIS_URL is set.
package redis
