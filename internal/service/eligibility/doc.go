// Package eligibility decides whether a streamer may join a campaign.
//
// Evaluate is a pure function of its JoinContext: it performs no I/O, reads
// no clock and mutates nothing. Loading inputs, locking the key and applying
// rule counters are the join coordinator's job.
//
// Evaluation order:
//
//  1. Key check. If the streamer's key for the campaign's category cannot be
//     used (locked, cooling off, out of daily quota) the decision is an
//     immediate block and no rule runs.
//  2. Rules, highest priority first (ties by id). A rule is skipped when its
//     scope or conditions exclude the request, or when its config is
//     malformed; skipped-for-config rules are reported back so the caller
//     can log them.
//  3. Aggregation. Any Blocking match blocks; Warning matches ride along on
//     an allowed decision; Advisory matches never affect the outcome.
package eligibility
