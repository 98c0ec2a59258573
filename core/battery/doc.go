// Package battery models one cell pack of the storage subsystem and the
// state machine that drives it through its charge and discharge cycles.
//
// A Battery is the single source of truth for the physical attributes of a
// pack. It is mutated only through ApplyCurrent, ApplyCurrentUntil and
// ApplyRest. A Machine owns a Battery and decides, after every applied
// sub-step, whether a cutoff forces a phase change:
//
//	IDLE -> CHARGING_CC -> CHARGING_CV -> REST -> IDLE
//	IDLE -> DISCHARGING -> REST -> IDLE
//
// Neither type is safe for concurrent use. The live instance is guarded by
// core/control; simulations work on clones.
package battery
