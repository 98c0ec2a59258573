// Package rate maps harvested power to charge and discharge C-rates.
//
// Policy.Adapt is the only place rate decisions are made, so the live
// controller, the schedule builder and the day simulator produce identical
// set-points for identical inputs. Its input is always the production of one
// hour: a plan entry, a simulated hour or the hour of a live tick. Above the
// reference production the charge rate is throttled and the discharge rate
// boosted in proportion to the surplus; at or below it the nominal base rates
// apply unchanged.
package rate
