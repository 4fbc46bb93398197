// Package engine is the Coup table state machine.
//
// A Machine owns one table: seats, deck and the claim moving through the
// response windows. Commands are applied with Apply, window deadlines with
// Expire, and the events produced since the last call are collected with
// Drain. The machine is not safe for concurrent use; callers serialize
// access (see package session).
//
// A turn flows through these phases:
//
//	AWAITING_ACTION -> CHALLENGE_WINDOW -> BLOCK_WINDOW -> BLOCK_CHALLENGE_WINDOW -> RESOLVING
//
// Windows are skipped when the action has no claim or no counter. Influence
// losses and exchanges park the table in AWAITING_INFLUENCE_LOSS or
// AWAITING_EXCHANGE until the seat answers or its timeout lapses.
package engine
