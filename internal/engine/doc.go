// Package engine evaluates the fixed three-table inequality query
//
//	SELECT a, SUM(x*y*z) AS s FROM t1 LEFT JOIN (t2 JOIN t3) ON a < b + c
//	GROUP BY a STABLE ORDER BY s DESC LIMIT 10
//
// without the O(|T1|·|T2|·|T3|) triple loop.
//
// ARCHITECTURE:
//
// Grouping:
// T1 collapses into one Group per distinct key in a single pass. Each group
// records the 1-based row of its first occurrence; that field, never container
// order, breaks ties in the final ranking.
//
// Materialized pair (strategy t2t3):
// T2×T3 is built as (b+c, y*z) entries sorted by key sum, and the products
// are rewritten in place into suffix sums. A group's aggregate is then
//
//	s = xSum · suffix[first index with b+c > a]
//
// one binary search per group.
//
// Probe pairs (strategies probe_t3 and probe_t2):
// When T2×T3 does not fit the memory budget, the planner walks the pair of T1
// groups with one table and probes the other, sorted by key with suffix sums
// over its values. Float addition is monotone, so the rows satisfying
// a < b + c for a fixed outer row are a suffix of the sorted side.
//
// Planner:
// Before anything is allocated, every candidate pair is sized at
// PairEntryBytes per entry and compared with the budget. If none fits the
// run fails with a RESOURCE_EXHAUSTION QueryError.
//
// DETERMINISM:
// Join entries are totally ordered by (key sum, product, product bits), and
// parallel work is split into fixed ranges, so output bytes do not depend on
// the worker count or on scheduling.
package engine
