// Package redisrelay relays streaming.Sink notifications between processes
// using Redis streams.
//
// The producing process uses a *Relay wherever a streaming.Sink is expected.
// Each Push, End or Fail becomes one XADD entry on the key
// <prefix><token>. The consuming process opens a session on its local
// streaming.Bridge and calls Forward with that session's token; Forward reads
// the key from its first entry, so notifications published before the
// consumer attached are not lost.
//
// Configuration is read with envdecode:
//
//	REDIS_ADDR             default localhost:6379
//	HPD_STREAM_KEY_PREFIX  default hpd:stream:
//	HPD_STREAM_BLOCK       default 500ms
//	HPD_STREAM_TTL         default 10m
package redisrelay
