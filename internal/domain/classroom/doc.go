// Package classroom defines the records mirrored from the backend: profiles,
// lesson content (units, rounds, words), round progress, unit tests and chat.
//
// Records are plain values. Partial rows arriving from the change feed are
// decoded into Patch types whose nil fields mean "not present", so merging a
// patch over a record only touches what the row actually carried.
package classroom
