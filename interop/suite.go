// Package interop schedules an interop run: for every eligible (server, client) pair it runs the
// catalog in order, applies the rule that a pair whose transfer test failed has its
// measurements skipped, and records one result per triple in a matrix.
package interop

import (
	"context"
	"fmt"
	"time"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"

	"github.com/quic-interop/interop-harness/framework"
	"github.com/quic-interop/interop-harness/framework/result"
	"github.com/quic-interop/interop-harness/framework/runlog"
	"github.com/quic-interop/interop-harness/orchestrator"
	"github.com/quic-interop/interop-harness/registry"
	"github.com/quic-interop/interop-harness/testcases"
)

// Runner executes one attempt of a triple.
type Runner interface {
	Run(ctx context.Context, server, client registry.Implementation, tc testcases.TestCase) orchestrator.Outcome
}

// ComplianceChecker verifies that an implementation rejects unknown test cases in a role.
type ComplianceChecker interface {
	CheckCompliance(ctx context.Context, impl registry.Implementation, role registry.Role) error
}

// Config describes one run.
type Config struct {
	Servers []registry.Implementation
	Clients []registry.Implementation
	Catalog []testcases.TestCase
	// Filter selects triples; all are selected if nil.
	Filter     runlog.Filter
	TestLogger runlog.TestLogger
	// Compliance, if set, is consulted for both endpoints before a pair runs.
	Compliance ComplianceChecker
	// Matrix receives the results; a new one is created if nil. Passing it in lets other
	// components observe the run while it is in progress.
	Matrix  *result.Matrix
	Loggers ldlog.Loggers
}

const interruptedDetail = "not completed: the run was interrupted"

// RunSuite runs every selected triple and returns the filled matrix. It returns early with the
// remaining cells recorded as FAILED if ctx is cancelled.
func RunSuite(ctx context.Context, runner Runner, config Config) *result.Matrix {
	if config.TestLogger == nil {
		config.TestLogger = runlog.NullTestLogger()
	}
	if config.Matrix == nil {
		config.Matrix = result.NewMatrix()
	}
	s := &suite{runner: runner, config: config, matrix: config.Matrix}
	for _, server := range config.Servers {
		if !server.Role.CanServe() {
			continue
		}
		for _, client := range config.Clients {
			if !client.Role.CanConnect() {
				continue
			}
			s.runPair(ctx, server, client)
		}
	}
	s.matrix.EndTime = time.Now()
	return s.matrix
}

type suite struct {
	runner Runner
	config Config
	matrix *result.Matrix
}

// pair tracks the state of one (server, client) pair. transferFailed is latched once the
// pair's transfer test fails and is never cleared.
type pair struct {
	server, client registry.Implementation
	transferFailed bool
}

func (p *pair) key(tc testcases.TestCase) result.Key {
	return result.Key{Server: p.server.Name, Client: p.client.Name, Test: tc.Name}
}

// latch records that the pair's transfer test failed, however that result came about.
func (p *pair) latch(tc testcases.TestCase, r result.Result) {
	if tc.Kind == testcases.KindTransfer && r == result.Failed {
		p.transferFailed = true
	}
}

func (s *suite) runPair(ctx context.Context, server, client registry.Implementation) {
	p := &pair{server: server, client: client}

	var tests, measurements []testcases.TestCase
	for _, tc := range s.config.Catalog {
		id := runlog.IDFor(p.key(tc))
		if s.config.Filter != nil && !s.config.Filter.Match(id) {
			s.config.TestLogger.TestSkipped(id, "excluded by filter")
			continue
		}
		if tc.IsMeasurement() {
			measurements = append(measurements, tc)
		} else {
			tests = append(tests, tc)
		}
	}
	if len(tests) == 0 && len(measurements) == 0 {
		return
	}

	if err := s.checkCompliance(ctx, p); err != nil {
		r, detail := result.Classify(err)
		s.config.Loggers.Warnf("Pair %s/%s: %s", server.Name, client.Name, detail)
		for _, tc := range tests {
			s.record(p.key(tc), tc, result.MeasurementResult{Result: r, Details: detail}, err, nil)
			p.latch(tc, r)
		}
		for _, tc := range measurements {
			if p.transferFailed {
				s.runMeasurement(ctx, p, tc)
				continue
			}
			s.record(p.key(tc), tc, result.MeasurementResult{Result: r, Details: detail}, err, nil)
		}
		return
	}

	for _, tc := range tests {
		s.runTest(ctx, p, tc)
	}
	for _, tc := range measurements {
		s.runMeasurement(ctx, p, tc)
	}
}

func (s *suite) checkCompliance(ctx context.Context, p *pair) error {
	if s.config.Compliance == nil {
		return nil
	}
	if err := s.config.Compliance.CheckCompliance(ctx, p.server, registry.RoleServer); err != nil {
		return err
	}
	return s.config.Compliance.CheckCompliance(ctx, p.client, registry.RoleClient)
}

func (s *suite) runTest(ctx context.Context, p *pair, tc testcases.TestCase) {
	key := p.key(tc)
	if ctx.Err() != nil {
		s.record(key, tc, result.MeasurementResult{Result: result.Failed, Details: interruptedDetail}, nil, nil)
		p.latch(tc, result.Failed)
		return
	}
	s.config.TestLogger.TestStarted(runlog.IDFor(key))
	out := s.runner.Run(ctx, p.server, p.client, tc)
	r, detail := result.Classify(out.Err)
	p.latch(tc, r)
	s.finish(key, tc, result.MeasurementResult{Result: r, Details: detail}, out.Err, out.Output)
}

func (s *suite) runMeasurement(ctx context.Context, p *pair, tc testcases.TestCase) {
	key := p.key(tc)
	if p.transferFailed {
		s.record(key, tc, result.MeasurementResult{Result: result.Unsupported, Details: result.TransferFailedSkip.Reason},
			nil, nil)
		return
	}
	if ctx.Err() != nil {
		s.record(key, tc, result.MeasurementResult{Result: result.Failed, Details: interruptedDetail}, nil, nil)
		return
	}

	s.config.TestLogger.TestStarted(runlog.IDFor(key))
	var values []float64
	var output framework.CapturedOutput
	for i := 0; i < tc.Runs(); i++ {
		out := s.runner.Run(ctx, p.server, p.client, tc)
		output = append(output, framework.CapturedMessage{
			Time: time.Now(), Message: fmt.Sprintf("Repetition %d of %d: %s", i+1, tc.Runs(), out.Result),
		})
		output = append(output, out.Output...)
		if out.Result != result.Succeeded {
			s.finish(key, tc, result.MeasurementResult{Result: out.Result}, out.Err, output)
			return
		}
		values = append(values, out.Value.Value())
	}
	details := result.FormatMeasurement(values, tc.Unit)
	s.finish(key, tc, result.MeasurementResult{Result: result.Succeeded, Details: details}, nil, output)
}

// record writes a cell that was decided without running anything.
func (s *suite) record(key result.Key, tc testcases.TestCase, r result.MeasurementResult, err error,
	output framework.CapturedOutput) {
	s.config.TestLogger.TestStarted(runlog.IDFor(key))
	s.finish(key, tc, r, err, output)
}

func (s *suite) finish(key result.Key, tc testcases.TestCase, r result.MeasurementResult, err error,
	output framework.CapturedOutput) {
	id := runlog.IDFor(key)
	if err != nil && r.Result == result.Failed {
		s.config.TestLogger.TestError(id, err)
	}
	var setErr error
	if tc.IsMeasurement() {
		setErr = s.matrix.SetMeasurement(key, r)
	} else {
		setErr = s.matrix.SetTest(key, r.Result)
	}
	if setErr != nil {
		s.config.Loggers.Errorf("Recording %s: %s", key, setErr)
	}
	s.config.TestLogger.TestFinished(id, r.Result, r.Details, output)
}
