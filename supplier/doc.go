// Package supplier provides in-process types.Supplier implementations.
//
// Slice serves records kept in memory, with the record index as position.
// It is the supplier used by unit tests and by jobs whose input is already
// loaded. Suppliers over external streams live in the jetstream and kafka
// subpackages.
package supplier
