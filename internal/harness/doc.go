// Package harness runs scripted scenarios against the update engine.
//
// A scenario declares dependents, drives the engine through a list of
// steps and asserts on the resulting event trace. Dependents can script
// reentrant calls (remove, add, defer, trigger, flush, cancel) and failures,
// which makes the harness the natural place to pin down ordering and
// reentrancy behaviour.
//
// # Scenario Format
//
//	name: basic
//	description: "What this scenario validates"
//	engine:
//	  max_dependents: 10240
//	dependents:
//	  - name: d1
//	  - name: d2
//	    on_update:
//	      - remove: { subject: s, dependent: d3 }
//	        once: true
//	      - fail: "boom"
//	        when: { subject: t }
//	steps:
//	  - add: { subject: s, dependent: d1 }
//	  - trigger: { subject: s, message: changed }
//	    expect: { delivered: true }
//	  - defer: { subject: s, message: changed }
//	  - flush: {}
//	  - remove: { subject: s, dependent: d1 }
//	    expect: { removed: 1 }
//	assertions:
//	  - type: delivery_order
//	    deliveries: [d1@s:changed, d2@s:changed]
//	  - type: done_count
//	    count: 2
//
// # Assertion Types
//
//   - delivery_order: deliveries appear in the given relative order
//     (or exactly, with exact: true)
//   - delivery_count: a dependent was notified exactly N times
//   - done_count: the update-done hook fired exactly N times
//   - event_count: N events of a kind were recorded
//   - pending_count: N changes are still queued at the end
//   - registration_count: N registrations remain at the end
//
// # Deterministic Testing
//
// Every scenario gets a fresh engine, a testutil.DeterministicClock and a
// fixed run ID, so traces are byte-identical across runs and can be
// compared against golden files with RunWithGolden.
package harness
