package redis

const (
	luaAppendEvents = `
		-- Atomically append a batch of events, rejecting known IDs
		-- KEYS[1] = event list key
		-- KEYS[2] = event id index key (hash of id -> list index)
		-- KEYS[3..N+2] = name index key of each event (list of list indexes)
		-- ARGV[1..2N] = alternating event id, event data (JSON)
		-- Returns: {1, newLength} on success, or {0, duplicateID}

		for i = 1, #ARGV, 2 do
			if redis.call('HEXISTS', KEYS[2], ARGV[i]) == 1 then
				return {0, ARGV[i]}
			end
		end

		local nextIndex = redis.call('LLEN', KEYS[1])
		for i = 1, #ARGV, 2 do
			redis.call('RPUSH', KEYS[1], ARGV[i + 1])
			redis.call('HSET', KEYS[2], ARGV[i], nextIndex)
			redis.call('RPUSH', KEYS[3 + (i - 1) / 2], nextIndex)
			nextIndex = nextIndex + 1
		end

		return {1, nextIndex}
		`

	luaGetEventsByName = `
		-- Get every event with a given name, in insertion order
		-- KEYS[1] = event list key
		-- KEYS[2] = name index key
		-- Returns: {eventData...}

		local indexes = redis.call('LRANGE', KEYS[2], 0, -1)
		local res = {}
		for _, index in ipairs(indexes) do
			local data = redis.call('LINDEX', KEYS[1], tonumber(index))
			if data then
				res[#res + 1] = data
			end
		end
		return res
		`

	luaGetEvent = `
		-- Get a single event by ID
		-- KEYS[1] = event list key
		-- KEYS[2] = event id index key
		-- ARGV[1] = event id
		-- Returns: {} when unknown, or {eventData}

		local index = redis.call('HGET', KEYS[2], ARGV[1])
		if not index then
			return {}
		end
		local data = redis.call('LINDEX', KEYS[1], tonumber(index))
		if not data then
			return {}
		end
		return {data}
		`
)
