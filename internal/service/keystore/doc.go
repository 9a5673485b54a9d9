// Package keystore owns the per-(streamer, category) lock keys.
//
// Every state change goes through Repository.ConditionalUpdate, a single
// compare-and-set write against shared storage. That write is the only
// serialization point for concurrent joins: two joins racing for the same key
// both reach it and exactly one sees ok=true, regardless of how many engine
// processes are running.
//
// ComputeStatus is the pure, time-aware read model of a key.
package keystore
