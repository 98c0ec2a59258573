// Package control owns the live battery. Commands and ticks are serialised
// on one mutex while status reads use the last committed snapshot and never
// block. Events, persistence and status publishing run after the mutex is
// released, in commit order.
package control
