package redis

import "github.com/redis/go-redis/v9"

// KEYS: job hash, ready zset, queue set, sequence counter.
// ARGV: id, queue, input, status, attempts, max_attempts, run_at, created_at, updated_at.
var enqueueScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return -1
end
local seq = redis.call('INCR', KEYS[4])
redis.call('HSET', KEYS[1],
	'id', ARGV[1], 'queue', ARGV[2], 'input', ARGV[3], 'output', '', 'error', '',
	'status', ARGV[4], 'attempts', ARGV[5], 'max_attempts', ARGV[6], 'seq', seq,
	'run_at', ARGV[7], 'locked_by', '', 'created_at', ARGV[8], 'updated_at', ARGV[9],
	'started_at', '', 'finished_at', '')
redis.call('ZADD', KEYS[2], seq, ARGV[1])
redis.call('SADD', KEYS[3], ARGV[1])
return seq
`)

// KEYS: ready zset.
// ARGV: now, worker id, started_at, job key prefix.
var claimScript = redis.NewScript(`
local ids = redis.call('ZRANGE', KEYS[1], 0, -1)
for _, id in ipairs(ids) do
	local key = ARGV[4] .. id
	local f = redis.call('HMGET', key, 'run_at', 'attempts', 'max_attempts', 'status')
	if not f[1] or (f[4] ~= 'pending' and f[4] ~= 'retrying') then
		redis.call('ZREM', KEYS[1], id)
	elseif tonumber(f[1]) <= tonumber(ARGV[1]) and tonumber(f[2]) < tonumber(f[3]) then
		redis.call('ZREM', KEYS[1], id)
		redis.call('HSET', key, 'status', 'processing', 'locked_by', ARGV[2],
			'started_at', ARGV[3], 'updated_at', ARGV[3])
		return redis.call('HGETALL', key)
	end
end
return false
`)

// KEYS: job hash, ready zset.
// ARGV: operation, now, output or error message, run_at.
// Returns 1 on success, -1 for a missing job or the current status when the
// job is not processing.
var settleScript = redis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if not status then
	return -1
end
if status ~= 'processing' then
	return status
end

local op = ARGV[1]
if op == 'complete' then
	redis.call('HSET', KEYS[1], 'status', 'completed', 'output', ARGV[3], 'error', '',
		'locked_by', '', 'finished_at', ARGV[2], 'updated_at', ARGV[2])
elseif op == 'retry' then
	local attempts = redis.call('HINCRBY', KEYS[1], 'attempts', 1)
	redis.call('HSET', KEYS[1], 'status', 'retrying', 'error', ARGV[3], 'run_at', ARGV[4],
		'locked_by', '', 'updated_at', ARGV[2])
	if attempts < tonumber(redis.call('HGET', KEYS[1], 'max_attempts')) then
		redis.call('ZADD', KEYS[2], redis.call('HGET', KEYS[1], 'seq'), redis.call('HGET', KEYS[1], 'id'))
	end
elseif op == 'fail' then
	redis.call('HINCRBY', KEYS[1], 'attempts', 1)
	redis.call('HSET', KEYS[1], 'status', 'failed', 'error', ARGV[3],
		'locked_by', '', 'finished_at', ARGV[2], 'updated_at', ARGV[2])
elseif op == 'release' then
	redis.call('HSET', KEYS[1], 'status', 'pending', 'locked_by', '', 'started_at', '',
		'updated_at', ARGV[2])
	redis.call('ZADD', KEYS[2], redis.call('HGET', KEYS[1], 'seq'), redis.call('HGET', KEYS[1], 'id'))
else
	return redis.error_reply('unknown operation ' .. op)
end
return 1
`)

// KEYS: queue set. ARGV: job key prefix.
var sizeScript = redis.NewScript(`
local n = 0
for _, id in ipairs(redis.call('SMEMBERS', KEYS[1])) do
	local status = redis.call('HGET', ARGV[1] .. id, 'status')
	if status and status ~= 'completed' and status ~= 'failed' then
		n = n + 1
	end
end
return n
`)

// KEYS: queue set, ready zset. ARGV: job key prefix.
var deleteAllScript = redis.NewScript(`
for _, id in ipairs(redis.call('SMEMBERS', KEYS[1])) do
	redis.call('DEL', ARGV[1] .. id)
end
redis.call('DEL', KEYS[1], KEYS[2])
return 1
`)

// KEYS: starts zset. ARGV: at, since, limit, member.
var recordIfBelowScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[2])
local n = redis.call('ZCOUNT', KEYS[1], '(' .. ARGV[2], '+inf')
if n >= tonumber(ARGV[3]) then
	return 0
end
redis.call('ZADD', KEYS[1], ARGV[1], ARGV[4])
return 1
`)
