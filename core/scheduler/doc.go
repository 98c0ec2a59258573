// Package scheduler builds the day-ahead operating plan of a storage unit:
// charge from daytime production, discharge into the streetlight load at
// night, and summarise whether the pack can cover the night.
package scheduler
