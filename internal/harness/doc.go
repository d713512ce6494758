// Package harness runs query scenarios end to end.
//
// A scenario supplies three tables and either the expected result rows or
// the expected error code. The harness writes the tables to a scratch
// directory, runs the engine exactly as the select command does, and
// compares the written result. Scenarios may also ask for a cross-check
// against the SQLite oracle in package store.
//
// # Scenario Format
//
//	name: concrete_scenario
//	description: "Two groups, one T2 row, one T3 row"
//	t1: [[1, 10], [2, 20]]      # inline rows
//	t2:
//	  text: "1\n5 2\n"          # raw file content
//	t3:
//	  file: tables/t3.txt       # relative to the scenario file
//	strategy: auto              # optional, see engine.Strategy
//	workers: 2                  # optional
//	memory_budget: 1MiB         # optional
//	oracle: true                # optional SQLite cross-check
//	expect: [[2, 120], [1, 60]] # or: expect_error: FORMAT_FAILURE
//
// # Deterministic Testing
//
// Runs use a fixed run ID (scenario run_id, or "test-run-default"), so JSON
// reports are reproducible. Result files are compared exactly against golden
// files with goldie (testdata/golden/<name>.golden); expected rows are
// compared with a relative tolerance of 1e-9.
package harness
