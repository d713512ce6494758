// Package store provides a SQLite reference oracle for the query.
//
// The three input tables are loaded into SQLite and the query is evaluated as
// plain SQL (query.sql), with the STABLE tie-break expressed as
// ORDER BY s DESC, MIN(rowid). The engine never depends on this package; it
// exists so results can be cross-checked by the verify command and by tests.
//
// # Limits
//
//   - NaN cannot be stored (SQLite maps it to NULL); LoadTable rejects it.
//   - 0 and -0 keys collapse into one group.
//   - SQLite sums in its own order, so sums agree with the engine only within
//     a relative tolerance.
//   - The join is evaluated as a nested loop, so inputs must be small.
//
// # Database Configuration
//
// The oracle is loaded once and queried once by a single connection, so it
// runs with journal_mode=MEMORY, synchronous=OFF and temp_store=MEMORY.
package store
