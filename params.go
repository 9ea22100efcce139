package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/quic-interop/interop-harness/framework/runlog"
)

const envPrefix = "INTEROP_"

type commandParams struct {
	implementations string
	servers         string
	clients         string
	tests           string
	filters         runlog.RegexFilters
	replacements    replacementList
	skipFile        string
	recordFailures  string
	debug           bool
	debugAll        bool
	logDir          string
	workDir         string
	composeFile     string
	tshark          string
	lease           string
	envFile         string
	listen          string
	markdown        bool
	jsonFile        string
	jUnitFile       string
	quicVersion     string
	s3Bucket        string
	s3Prefix        string
	s3Region        string
	s3Endpoint      string
}

// replacementList collects -replace name=image arguments.
type replacementList []replacement

type replacement struct {
	name, image string
}

func (l replacementList) String() string {
	ss := make([]string, 0, len(l))
	for _, r := range l {
		ss = append(ss, r.name+"="+r.image)
	}
	return strings.Join(ss, ",")
}

// Set is called by the command line parser
func (l *replacementList) Set(value string) error {
	for _, part := range strings.Split(value, ",") {
		name, image, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || name == "" || image == "" {
			return fmt.Errorf("invalid replacement %q, expected name=image", part)
		}
		*l = append(*l, replacement{name, image})
	}
	return nil
}

func (c *commandParams) Read(args []string) bool {
	fs := flag.NewFlagSet("", flag.ExitOnError)
	fs.StringVar(&c.implementations, "implementations", "implementations.json", "registry file (JSON or YAML)")
	fs.StringVar(&c.servers, "servers", "", "comma-separated server implementations (default: all)")
	fs.StringVar(&c.clients, "clients", "", "comma-separated client implementations (default: all)")
	fs.StringVar(&c.tests, "tests", "", "comma-separated test cases or abbreviations, or onlyTests, onlyMeasurements")
	fs.Var(&c.filters.MustMatch, "run", "regex pattern(s) of server/client/test to run")
	fs.Var(&c.filters.MustNotMatch, "skip", "regex pattern(s) of server/client/test not to run")
	fs.Var(&c.replacements, "replace", "name=image pairs overriding registry images")
	fs.StringVar(&c.skipFile, "skip-from", "", "file of server/client/test IDs not to run, one per line")
	fs.StringVar(&c.recordFailures, "record-failures", "", "write the IDs of failed triples to this file")
	fs.BoolVar(&c.debug, "debug", false, "enable debug logging for failed runs")
	fs.BoolVar(&c.debugAll, "debug-all", false, "enable debug logging for all runs")
	fs.StringVar(&c.logDir, "log-dir", "logs", "directory for archived run logs")
	fs.StringVar(&c.workDir, "work-dir", "", "directory for per-run scratch space (default: system temp)")
	fs.StringVar(&c.composeFile, "compose-file", "", "docker compose file (default: built-in)")
	fs.StringVar(&c.tshark, "tshark", "tshark", "path to the tshark binary")
	fs.StringVar(&c.lease, "lease", "local", "stack lease: local, redis://host:port, consul://host:port")
	fs.StringVar(&c.envFile, "env-file", ".env", "dotenv file with "+envPrefix+"* defaults")
	fs.StringVar(&c.listen, "listen", "", "address for the status server (disabled if empty)")
	fs.BoolVar(&c.markdown, "markdown", false, "print the result grid as Markdown")
	fs.StringVar(&c.jsonFile, "json", "", "write the JSON report to the specified path")
	fs.StringVar(&c.jUnitFile, "junit", "", "write JUnit XML output to the specified path")
	fs.StringVar(&c.quicVersion, "version", "", "QUIC version recorded in the JSON report")
	fs.StringVar(&c.s3Bucket, "s3-bucket", "", "upload reports and logs to this S3 bucket")
	fs.StringVar(&c.s3Prefix, "s3-prefix", "", "key prefix for S3 uploads")
	fs.StringVar(&c.s3Region, "s3-region", "", "S3 region")
	fs.StringVar(&c.s3Endpoint, "s3-endpoint", "", "S3 endpoint for non-AWS storage")

	if err := fs.Parse(args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		fs.Usage()
		return false
	}
	if err := applyEnvDefaults(fs, c.envFile, os.LookupEnv); err != nil {
		fmt.Fprintln(os.Stderr, err)
		fs.Usage()
		return false
	}
	return true
}

// applyEnvDefaults sets every flag that was not given on the command line from INTEROP_<NAME>,
// looking first in the process environment and then in the dotenv file. A missing dotenv file
// is not an error.
func applyEnvDefaults(fs *flag.FlagSet, envFile string, lookupEnv func(string) (string, bool)) error {
	fileEnv := map[string]string{}
	if envFile != "" {
		values, err := godotenv.Read(envFile)
		switch {
		case err == nil:
			fileEnv = values
		case !errors.Is(err, os.ErrNotExist):
			return fmt.Errorf("reading %s: %w", envFile, err)
		}
	}

	explicit := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	var err error
	fs.VisitAll(func(f *flag.Flag) {
		if explicit[f.Name] || f.Name == "env-file" || err != nil {
			return
		}
		name := envPrefix + strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
		value, ok := lookupEnv(name)
		if !ok {
			value, ok = fileEnv[name]
		}
		if !ok {
			return
		}
		if setErr := fs.Set(f.Name, value); setErr != nil {
			err = fmt.Errorf("invalid value for %s: %w", name, setErr)
		}
	})
	return err
}
