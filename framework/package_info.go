// Package framework contains the low-level pieces of the interop harness that are not specific
// to any one test case: the Logger abstraction and the per-run capturing logger. Other shared
// components live in the subpackages:
//
// - result: the outcome enum, the append-only results matrix and measurement statistics.
//
// - runlog: test identifiers, regex filters, and the loggers that report progress to the
// console and to JUnit XML.
//
// - opt and helpers: small generic utilities.
//
// The general model is:
//
// 1. The scheduler (package interop) walks every (server, client, test case) triple.
//
// 2. The orchestrator (package orchestrator) runs one triple inside a container stack and
// classifies the outcome.
//
// 3. Each outcome is written once to a result.Matrix and reported to a runlog.TestLogger.
package framework
