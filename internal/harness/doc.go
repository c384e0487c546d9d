// Package harness runs conformance scenarios against the merge pipeline.
//
// A scenario describes a small traced program, the values its arguments take
// in each run, and what the merged session must look like. The harness
// records every run with deterministic ids and clocks, merges them into an
// in-memory store, rebuilds the call graphs and evaluates the assertions.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: accumulate
//	description: "A loop whose output drifts between runs"
//	runs: 3
//	merge:
//	  method: cnh
//	  batch_size: 4
//	program:
//	  - call: main
//	    body:
//	      - call: step
//	        repeat: 3
//	        inputs: { x: 1.0 }
//	        outputs: { y: [0.1, 0.1000001, 0.0999999] }
//	assertions:
//	  - type: record_count
//	    count: 8
//	  - type: stat
//	    name: app.step
//	    label: outputs
//	    arg: y
//	    sig_min: 20
//
// An argument value is either one number, used by every run, or a list with
// one number per run. A call restricted with "only" is recorded in the listed
// runs alone, which lets a scenario describe diverging runs.
//
// # Assertion Types
//
//   - record_count: the number of merged positions
//   - record_order: functions whose INPUTS records appear in the given order
//   - stat: the summary of one argument (kind, mean, std, sig bounds)
//   - callgraph_count: the number of rebuilt call graphs
//   - callgraph_cycle: the repetition count of a node in a call graph
//   - summary: a subset match on the merge summary counters
//   - merge_error: the merge failed with the given code
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/accumulate.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(ctx, scenario)
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
