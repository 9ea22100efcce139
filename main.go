package main

import (
	"bufio"
	"context"
	_ "embed" // this is required in order for go:embed to work
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"

	"github.com/quic-interop/interop-harness/framework"
	"github.com/quic-interop/interop-harness/framework/result"
	"github.com/quic-interop/interop-harness/framework/runlog"
	"github.com/quic-interop/interop-harness/interop"
	"github.com/quic-interop/interop-harness/lease"
	"github.com/quic-interop/interop-harness/orchestrator"
	"github.com/quic-interop/interop-harness/publish"
	"github.com/quic-interop/interop-harness/registry"
	"github.com/quic-interop/interop-harness/report"
	"github.com/quic-interop/interop-harness/status"
	"github.com/quic-interop/interop-harness/testcases"
	"github.com/quic-interop/interop-harness/trace"
)

const (
	statusShutdownTimeout = time.Second * 5
	captureFlushWait      = time.Second * 5
)

//go:embed VERSION
var versionString string // comes from the VERSION file which we update for each release

func main() {
	fmt.Printf("quic-interop-harness v%s\n", strings.TrimSpace(versionString))

	var params commandParams
	if !params.Read(os.Args) {
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results, err := run(ctx, params)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if !results.OK() {
		os.Exit(1)
	}
}

func run(ctx context.Context, params commandParams) (*result.Matrix, error) {
	if params.skipFile != "" {
		if err := loadSuppressions(&params); err != nil {
			return nil, err
		}
	}

	loggers := ldlog.NewDefaultLoggers()
	mainDebugLogger := framework.NullLogger()
	if params.debugAll {
		loggers.SetMinLevel(ldlog.Debug)
		mainDebugLogger = loggers.ForLevel(ldlog.Debug)
	}

	reg, err := registry.Load(params.implementations)
	if err != nil {
		return nil, err
	}
	for _, r := range params.replacements {
		if reg, err = reg.WithImage(r.name, r.image); err != nil {
			return nil, err
		}
		loggers.Infof("Using image %s for %s", r.image, r.name)
	}
	servers, err := reg.Servers(splitList(params.servers))
	if err != nil {
		return nil, err
	}
	clients, err := reg.Clients(splitList(params.clients))
	if err != nil {
		return nil, err
	}
	catalog, err := testcases.Select(params.tests)
	if err != nil {
		return nil, err
	}
	locker, err := lease.Parse(params.lease)
	if err != nil {
		return nil, err
	}

	runLogDir := ""
	if params.logDir != "" {
		runLogDir = filepath.Join(params.logDir, time.Now().Format("2006-01-02T15-04-05"))
	}
	orch := orchestrator.New(orchestrator.Config{
		Runtime:      &orchestrator.ComposeRuntime{ComposeFile: params.composeFile, Loggers: loggers},
		TraceReader:  trace.TSharkReader{Path: params.tshark, Logger: mainDebugLogger},
		Locker:       locker,
		WorkDir:      params.workDir,
		LogDir:       runLogDir,
		MaxFlushWait: captureFlushWait,
		Loggers:      loggers,
	})

	matrix := result.NewMatrix()
	jsonParams := report.JSONParams{
		Implementations: reg.All(),
		LogDir:          runLogDir,
		QUICVersion:     params.quicVersion,
	}

	testLoggers := []runlog.TestLogger{
		runlog.ConsoleTestLogger{
			DebugOutputOnFailure: params.debug || params.debugAll,
			DebugOutputOnSuccess: params.debugAll,
		},
	}
	if params.jUnitFile != "" {
		testLoggers = append(testLoggers, runlog.NewJUnitTestLogger(params.jUnitFile, params.filters))
	}
	if params.listen != "" {
		statusServer := status.NewServer(matrix, catalog, jsonParams, mainDebugLogger)
		statusServer.SetTotal(len(servers) * len(clients) * len(catalog))
		stopStatus := startStatusServer(params.listen, statusServer, loggers)
		defer stopStatus()
		testLoggers = append(testLoggers, statusServer)
	}
	testLogger := &runlog.MultiTestLogger{Loggers: testLoggers}

	params.filters.Describe(os.Stdout)

	results := interop.RunSuite(ctx, orch, interop.Config{
		Servers:    servers,
		Clients:    clients,
		Catalog:    catalog,
		Filter:     params.filters,
		TestLogger: testLogger,
		Compliance: orch,
		Matrix:     matrix,
		Loggers:    loggers,
	})

	fmt.Println()
	logErr := testLogger.EndLog(results)

	fmt.Println()
	if params.markdown {
		report.WriteMarkdown(os.Stdout, results, catalog)
	} else {
		report.WriteText(os.Stdout, results, catalog)
	}

	if logErr != nil {
		return nil, fmt.Errorf("error writing log: %v", logErr)
	}

	jsonReport, err := report.JSON(results, catalog, jsonParams)
	if err != nil {
		return nil, fmt.Errorf("cannot render JSON report: %w", err)
	}
	if params.jsonFile != "" {
		fmt.Printf("Writing JSON report to %s\n", params.jsonFile)
		if err := os.WriteFile(params.jsonFile, jsonReport, 0644); err != nil { //nolint:gosec
			return nil, fmt.Errorf("cannot write JSON report: %w", err)
		}
	}

	if params.recordFailures != "" {
		f, err := os.Create(params.recordFailures)
		if err != nil {
			return nil, fmt.Errorf("cannot create suppression file: %v", err)
		}
		for _, key := range results.Failures() {
			fmt.Fprintln(f, key)
		}
		_ = f.Close()
	}

	if params.s3Bucket != "" {
		if err := publishResults(ctx, params, jsonReport, runLogDir, mainDebugLogger); err != nil {
			return nil, err
		}
	}

	return results, nil
}

func publishResults(
	ctx context.Context,
	params commandParams,
	jsonReport []byte,
	runLogDir string,
	debugLogger framework.Logger,
) error {
	publisher, err := publish.NewS3Publisher(publish.S3Config{
		Bucket:   params.s3Bucket,
		Prefix:   params.s3Prefix,
		Region:   params.s3Region,
		Endpoint: params.s3Endpoint,
	}, debugLogger)
	if err != nil {
		return err
	}
	fmt.Printf("Uploading results to s3://%s/%s\n", params.s3Bucket, params.s3Prefix)
	if err := publisher.Put(ctx, "result.json", jsonReport); err != nil {
		return err
	}
	if runLogDir == "" {
		return nil
	}
	if _, err := os.Stat(runLogDir); err != nil {
		return nil //nolint:nilerr // nothing was archived
	}
	return publisher.PutDir(ctx, runLogDir)
}

func startStatusServer(addr string, handler http.Handler, loggers ldlog.Loggers) func() {
	server := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: time.Second * 10}
	go func() {
		loggers.Infof("Status server listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			loggers.Errorf("Status server failed: %s", err)
		}
	}()
	return func() {
		if closer, ok := handler.(interface{ Close() }); ok {
			closer.Close()
		}
		ctx, cancel := context.WithTimeout(context.Background(), statusShutdownTimeout)
		defer cancel()
		_ = server.Shutdown(ctx)
	}
}

func splitList(s string) []string {
	var ret []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			ret = append(ret, part)
		}
	}
	return ret
}

func loadSuppressions(params *commandParams) error {
	file, err := os.Open(params.skipFile)
	if err != nil {
		return fmt.Errorf("cannot open provided suppression file: %v", err)
	}
	defer func() { _ = file.Close() }()
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		// Ignore blank lines
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := params.filters.MustNotMatch.Set(suppressionPattern(line)); err != nil {
			return fmt.Errorf("cannot parse suppression: %v", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("while processing suppression file: %v", err)
	}
	return nil
}

// suppressionPattern turns a literal server/client/test ID into a pattern that matches exactly
// that triple. Each component is quoted and anchored separately, since the pattern is split on
// slashes.
func suppressionPattern(id string) string {
	parts := strings.Split(strings.TrimSpace(id), "/")
	for i, p := range parts {
		parts[i] = "^" + regexp.QuoteMeta(p) + "$"
	}
	return strings.Join(parts, "/")
}
