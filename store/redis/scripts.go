package redis

import "github.com/redis/go-redis/v9"

// Job record keys are derived from an id inside the scripts, so the store
// expects a single Redis node or a cluster hash tag in the prefix.

// enqueueScript
// KEYS: job, pending. ARGV: id, field, value, ...
var enqueueScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then return 0 end
redis.call('HSET', KEYS[1], unpack(ARGV, 2))
redis.call('LPUSH', KEYS[2], ARGV[1])
return 1
`)

// claimScript promotes due scheduled jobs to the head of pending, then moves
// the tail of pending to in-flight.
// KEYS: pending, in-flight, scheduled. ARGV: now, lease deadline, worker id, job key prefix.
var claimScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[3], '-inf', ARGV[1])
for _, id in ipairs(due) do
  redis.call('ZREM', KEYS[3], id)
  redis.call('LPUSH', KEYS[1], id)
end
local id = redis.call('RPOP', KEYS[1])
if not id then return false end
local key = ARGV[4] .. id
redis.call('ZADD', KEYS[2], ARGV[2], id)
redis.call('HSET', key, 'state', 'in_flight', 'worker_id', ARGV[3],
  'claimed_at', ARGV[1], 'lease_expires_at', ARGV[2], 'updated_at', ARGV[1])
return redis.call('HGETALL', key)
`)

// completeScript reports 0 unless the job is in flight under the worker.
// KEYS: in-flight, completed. ARGV: id, job key, now, worker id.
var completeScript = redis.NewScript(`
if not redis.call('ZSCORE', KEYS[1], ARGV[1]) then return 0 end
if redis.call('HGET', ARGV[2], 'worker_id') ~= ARGV[4] then return 0 end
redis.call('ZREM', KEYS[1], ARGV[1])
redis.call('HSET', ARGV[2], 'state', 'completed', 'lease_expires_at', '',
  'finished_at', ARGV[3], 'updated_at', ARGV[3])
redis.call('LPUSH', KEYS[2], ARGV[1])
return 1
`)

// failScript returns the job.Outcome it applied, 0 unless the job is in
// flight under the worker.
// KEYS: in-flight, pending, scheduled, dead-letter. ARGV: id, job key, now, reason, run at, worker id.
var failScript = redis.NewScript(`
if not redis.call('ZSCORE', KEYS[1], ARGV[1]) then return 0 end
if redis.call('HGET', ARGV[2], 'worker_id') ~= ARGV[6] then return 0 end
redis.call('ZREM', KEYS[1], ARGV[1])
local retries = redis.call('HINCRBY', ARGV[2], 'retry_count', 1)
local max = tonumber(redis.call('HGET', ARGV[2], 'max_retries')) or 0
redis.call('HSET', ARGV[2], 'error_message', ARGV[4], 'lease_expires_at', '', 'updated_at', ARGV[3])
if retries < max then
  redis.call('HSET', ARGV[2], 'state', 'pending', 'worker_id', '', 'claimed_at', '', 'run_at', ARGV[5])
  if tonumber(ARGV[5]) > tonumber(ARGV[3]) then
    redis.call('ZADD', KEYS[3], ARGV[5], ARGV[1])
    return 3
  end
  redis.call('LPUSH', KEYS[2], ARGV[1])
  return 2
end
redis.call('HSET', ARGV[2], 'state', 'dead_letter', 'finished_at', ARGV[3])
redis.call('LPUSH', KEYS[4], ARGV[1])
return 4
`)

// extendScript
// KEYS: in-flight. ARGV: id, job key, worker id, lease deadline, now.
var extendScript = redis.NewScript(`
if not redis.call('ZSCORE', KEYS[1], ARGV[1]) then return 0 end
if redis.call('HGET', ARGV[2], 'worker_id') ~= ARGV[3] then return 0 end
redis.call('ZADD', KEYS[1], 'XX', ARGV[4], ARGV[1])
redis.call('HSET', ARGV[2], 'lease_expires_at', ARGV[4], 'updated_at', ARGV[5])
return 1
`)

// recoverScript returns the ids it moved back to pending.
// KEYS: in-flight, pending. ARGV: now, job key prefix.
var recoverScript = redis.NewScript(`
local expired = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', '(' .. ARGV[1])
for _, id in ipairs(expired) do
  redis.call('ZREM', KEYS[1], id)
  redis.call('HSET', ARGV[2] .. id, 'state', 'pending', 'worker_id', '', 'claimed_at', '',
    'lease_expires_at', '', 'updated_at', ARGV[1])
  redis.call('LPUSH', KEYS[2], id)
end
return expired
`)

// purgeScript deletes list members that finished before the cutoff.
// KEYS: list. ARGV: cutoff, job key prefix.
var purgeScript = redis.NewScript(`
local ids = redis.call('LRANGE', KEYS[1], 0, -1)
local n = 0
for _, id in ipairs(ids) do
  local key = ARGV[2] .. id
  local finished = tonumber(redis.call('HGET', key, 'finished_at'))
  if finished and finished < tonumber(ARGV[1]) then
    redis.call('LREM', KEYS[1], 1, id)
    redis.call('DEL', key)
    n = n + 1
  end
end
return n
`)

var allScripts = []*redis.Script{
	enqueueScript, claimScript, completeScript, failScript,
	extendScript, recoverScript, purgeScript,
}
