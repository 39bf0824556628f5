// Package ratelimit throttles requests with fixed time windows.
//
// Every (scope, key) pair owns one window: a counter and the time it opened.
// The first request opens the window, each admitted request increments the
// counter, and once the counter reaches the policy maximum further requests
// are refused until the window duration has elapsed. Expired windows are
// reset lazily on the next access; nothing sweeps them for correctness.
//
// # Policies
//
// A Policies table holds the global policy and the per-route overrides. Route
// policies are stricter and applied in addition to the global one:
//
//	global        100 / 60s  {principal}
//	login           5 / 60s  login:{ip}
//	register        3 / 60s  register:{ip}
//	verify_email    5 / 60s  verify-email:{ip}
//
// # Storage
//
// Window state lives behind Store, whose Hit method is an atomic
// increment-and-compare. MemoryStore serializes per shard; RedisStore runs a
// Lua script so that the check and the increment happen in one step.
package ratelimit
