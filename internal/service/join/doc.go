// Package join orchestrates campaign joins and leaves.
//
// Join is evaluate, then lock, then record: the eligibility decision is made
// on a snapshot of the streamer's keys, participations and the active rules;
// the key is then taken with a conditional write; finally the caller's
// participation record is written. If that last step fails or the request is
// cancelled after the lock was taken, the lock is rolled back on a detached
// context so the key never leaks.
package join
