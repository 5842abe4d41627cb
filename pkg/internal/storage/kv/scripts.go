package kv

import "github.com/redis/go-redis/v9"

// appendScript 在 ARGV[1] 之后追加 ARGV[6..]. 与已有成员逐个比对，前缀不一致则放弃写入.
// 完整标记的值是列表总长度，读取时长度不一致视为未完成.
//
// KEYS[1] 列表  KEYS[2] 完整标记
// ARGV[1] after  ARGV[2] ttl(ms)  ARGV[3] complete ttl(ms)  ARGV[4] markComplete  ARGV[5] mode
var appendScript = redis.NewScript(`
local start = 0
if ARGV[1] ~= '' then
  local r = redis.call('ZRANK', KEYS[1], ARGV[1])
  if not r then return 0 end
  start = r + 1
end

local existing = redis.call('ZRANGE', KEYS[1], start, -1)
local n = #ARGV - 5
local overlap = math.min(#existing, n)
for i = 1, overlap do
  if existing[i] ~= ARGV[5 + i] then return 0 end
end
if ARGV[4] == '1' and #existing > n then return 0 end

local card = redis.call('ZCARD', KEYS[1])
for i = overlap + 1, n do
  local score = 0
  if ARGV[5] == 'seq' then score = card + i - overlap end
  redis.call('ZADD', KEYS[1], score, ARGV[5 + i])
end

local total = card + n - overlap
if total > 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
if ARGV[4] == '1' then
  redis.call('SET', KEYS[2], tostring(total), 'PX', ARGV[3])
end
return 1
`)

// rangeScript 返回 {status, complete, members...}.
// status: 0 列表不存在，1 正常，2 游标不在列表中.
//
// KEYS[1] 列表  KEYS[2] 完整标记
// ARGV[1] after  ARGV[2] count
var rangeScript = redis.NewScript(`
local marker = redis.call('GET', KEYS[2])
local card = redis.call('ZCARD', KEYS[1])
local complete = 0
if marker and tonumber(marker) == card then complete = 1 end

if card == 0 then
  if complete == 1 and ARGV[1] == '' then return {1, 1} end
  return {0, 0}
end

local start = 0
if ARGV[1] ~= '' then
  local r = redis.call('ZRANK', KEYS[1], ARGV[1])
  if not r then return {2, complete} end
  start = r + 1
end

local out = {1, complete}
local members = redis.call('ZRANGE', KEYS[1], start, start + tonumber(ARGV[2]) - 1)
for i = 1, #members do
  out[#out + 1] = members[i]
end
return out
`)
