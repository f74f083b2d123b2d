// Command extract computes core_v1 features for one artifact file and prints
// the result as JSON. Extraction runs locally by default, or against a
// running worker with -remote (HTTP) or -grpc.
//
// Usage:
//
//	extract -schema v1_timeseries_csv [-pretty] [-plot out.png] FILE
//
// FILE may be "-" for stdin. The exit status is 1 when extraction fails and
// 2 on usage errors.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/banshee-data/assay.report/internal/api"
	"github.com/banshee-data/assay.report/internal/chart"
	"github.com/banshee-data/assay.report/internal/extract"
	"github.com/banshee-data/assay.report/internal/rpc"
	"github.com/banshee-data/assay.report/internal/version"
	"github.com/banshee-data/assay.report/internal/worker"
)

const (
	exitFailure = 1
	exitUsage   = 2
)

var errUsage = errors.New("usage")

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

type options struct {
	schema  string
	pretty  bool
	plot    string
	remote  string
	grpc    string
	timeout time.Duration
	path    string
}

func parseArgs(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("extract", flag.ContinueOnError)
	fs.SetOutput(stderr)
	o := &options{}
	fs.StringVar(&o.schema, "schema", "", "Schema version of the artifact (required)")
	fs.BoolVar(&o.pretty, "pretty", false, "Indent the JSON output")
	fs.StringVar(&o.plot, "plot", "", "Also write a PNG plot of a timeseries artifact to this path")
	fs.StringVar(&o.remote, "remote", "", "Base URL of a running worker to extract with, e.g. http://localhost:8080")
	fs.StringVar(&o.grpc, "grpc", "", "Address of a worker's gRPC Extractor service")
	fs.DurationVar(&o.timeout, "timeout", 30*time.Second, "Timeout for remote extraction")
	showVersion := fs.Bool("version", false, "Print version and exit")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: extract -schema <%s> [flags] FILE\n\nFlags:\n", strings.Join(extract.SchemaVersions(), "|"))
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, errUsage
	}
	if *showVersion {
		fmt.Fprintln(stderr, "extract", version.String())
		return nil, nil
	}
	if o.schema == "" || fs.NArg() != 1 {
		fs.Usage()
		return nil, errUsage
	}
	if o.remote != "" && o.grpc != "" {
		fmt.Fprintln(stderr, "extract: -remote and -grpc are mutually exclusive")
		return nil, errUsage
	}
	o.path = fs.Arg(0)
	return o, nil
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	o, err := parseArgs(args, stderr)
	if err != nil {
		return exitUsage
	}
	if o == nil {
		return 0
	}

	content, err := readInput(o.path, stdin)
	if err != nil {
		fmt.Fprintf(stderr, "extract: %v\n", err)
		return exitFailure
	}
	if !utf8.Valid(content) {
		fmt.Fprintf(stderr, "extract: %s is not valid UTF-8 text\n", o.path)
		return exitFailure
	}

	res, err := extractContent(o, string(content))
	if err != nil {
		fmt.Fprintf(stderr, "extract: %v\n", err)
		return exitFailure
	}

	enc := json.NewEncoder(stdout)
	if o.pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(res); err != nil {
		fmt.Fprintf(stderr, "extract: encode result: %v\n", err)
		return exitFailure
	}
	if !res.Success {
		return exitFailure
	}

	if o.plot != "" {
		if err := writePlot(o.plot, o.path, o.schema, string(content)); err != nil {
			fmt.Fprintf(stderr, "extract: %v\n", err)
			return exitFailure
		}
	}
	return 0
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

func extractContent(o *options, content string) (extract.Result, error) {
	switch {
	case o.remote != "":
		ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
		defer cancel()
		return api.NewClient(o.remote, nil).Extract(ctx, o.schema, content)

	case o.grpc != "":
		conn, err := grpc.NewClient(o.grpc, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return extract.Result{}, fmt.Errorf("dial %s: %w", o.grpc, err)
		}
		defer conn.Close()
		ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
		defer cancel()
		return rpc.NewClient(conn).Extract(ctx, o.schema, content)

	default:
		extractor, ok := extract.ForSchema(o.schema)
		if !ok {
			return extract.Result{}, worker.NewUnsupportedSchemaError(o.schema)
		}
		return extractor.Extract(content), nil
	}
}

func writePlot(out, title, schema, content string) error {
	if schema != extract.SchemaTimeseriesCSV {
		return fmt.Errorf("-plot needs a %s artifact", extract.SchemaTimeseriesCSV)
	}
	series, err := chart.ParseSeries(content)
	if err != nil {
		return err
	}
	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("create plot: %w", err)
	}
	if err := chart.RenderPNG(f, title, series); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
