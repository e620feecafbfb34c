package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/topfew/pkg/config"
	"github.com/Sumatoshi-tech/topfew/pkg/keyfinder"
	"github.com/Sumatoshi-tech/topfew/pkg/observability"
	"github.com/Sumatoshi-tech/topfew/pkg/topfew"
	"github.com/Sumatoshi-tech/topfew/pkg/topk"
)

const accessLog = `10.0.0.1 GET /a 200
10.0.0.2 GET /b 404
10.0.0.1 GET /a 200
10.0.0.3 POST /c 500
10.0.0.1 GET /b 200
10.0.0.2 GET /a 200
`

func noopObservabilityInit(_ observability.Config) (observability.Providers, error) {
	return observability.Providers{
		Shutdown: func(_ context.Context) error { return nil },
	}, nil
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

// runTop executes the command against an empty config file so the caller's
// working directory and $HOME do not leak into the result.
func runTop(t *testing.T, obsInit observabilityInitFunc, stdin string, args ...string) (string, error) {
	t.Helper()

	cfgPath := writeFile(t, ".topfew.yaml", "")

	command := newTopCommandWithDeps(obsInit)

	var out bytes.Buffer

	command.SetOut(&out)
	command.SetErr(&bytes.Buffer{})
	command.SetIn(strings.NewReader(stdin))
	command.SetArgs(append([]string{"--config", cfgPath, "--no-color"}, args...))

	err := command.Execute()

	return out.String(), err
}

func TestTopCommand_File(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "in.txt", "a\nb\na\nc\na\nb\n")

	out, err := runTop(t, noopObservabilityInit, "", "-n", "2", "--chunk-size", "3B", "-w", "2", path)
	require.NoError(t, err)
	assert.Equal(t, "3 a\n2 b\n", out)
}

func TestTopCommand_Stdin(t *testing.T) {
	t.Parallel()

	out, err := runTop(t, noopObservabilityInit, "x\ny\nx\n")
	require.NoError(t, err)
	assert.Equal(t, "2 x\n1 y\n", out)
}

func TestTopCommand_KeyFlags(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "access.log", accessLog)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"fields", []string{"-f", "1"}, "3 10.0.0.1\n2 10.0.0.2\n1 10.0.0.3\n"},
		{"two fields", []string{"-f", "3,4", "-n", "3"}, "3 /a 200\n1 /c 500\n1 /b 404\n"},
		{"grep", []string{"-f", "3", "-g", " 200$"}, "3 /a\n1 /b\n"},
		{"vgrep", []string{"-f", "1", "-v", "GET"}, "1 10.0.0.3\n"},
		{"repeated grep", []string{"-f", "1", "-g", "GET", "-g", "/b"}, "1 10.0.0.2\n1 10.0.0.1\n"},
		{"sed", []string{"-f", "1", "-s", `s/\.\d+$/.x/`, "-n", "1"}, "6 10.0.0.x\n"},
		{"fieldsep", []string{"--fieldsep", ".", "-f", "4", "-n", "3"}, "2 1 GET /a 200\n1 3 POST /c 500\n1 2 GET /b 404\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			out, err := runTop(t, noopObservabilityInit, "", append(tt.args, path)...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestTopCommand_ZeroCount(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "in.txt", "a\n")

	out, err := runTop(t, noopObservabilityInit, "", "-n", "0", path)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestTopCommand_JSONAndYAML(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "in.txt", "a\nb\na\n")
	want := []topk.KeyCount{{Key: "a", Count: 2}, {Key: "b", Count: 1}}

	out, err := runTop(t, noopObservabilityInit, "", "-o", "json", path)
	require.NoError(t, err)

	var fromJSON []topk.KeyCount
	require.NoError(t, json.Unmarshal([]byte(out), &fromJSON))
	assert.Equal(t, want, fromJSON)

	out, err = runTop(t, noopObservabilityInit, "", "-o", "yaml", path)
	require.NoError(t, err)

	var fromYAML []topk.KeyCount
	require.NoError(t, yaml.Unmarshal([]byte(out), &fromYAML))
	assert.Equal(t, want, fromYAML)
}

func TestTopCommand_ConfigFileAndFlagOverride(t *testing.T) {
	t.Parallel()

	cfgPath := writeFile(t, "topfew.yaml", "output:\n  count: 2\n  format: json\n  no_color: true\n")
	path := writeFile(t, "in.txt", "a\nb\na\nc\na\n")

	command := newTopCommandWithDeps(noopObservabilityInit)

	var out bytes.Buffer

	command.SetOut(&out)
	command.SetArgs([]string{"--config", cfgPath, "-o", "text", path})

	require.NoError(t, command.Execute())
	assert.Equal(t, "3 a\n1 c\n", out.String(), "count comes from the file, format from the flag")
}

func TestTopCommand_Errors(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "in.txt", "a\n")

	tests := []struct {
		name string
		args []string
		want error
	}{
		{"format", []string{"-o", "xml", path}, config.ErrInvalidFormat},
		{"count", []string{"-n", "-1", path}, config.ErrInvalidCount},
		{"chunk size", []string{"--chunk-size", "huge", path}, config.ErrInvalidChunkSize},
		{"fields", []string{"-f", "0", path}, keyfinder.ErrInvalidPolicy},
		{"grep", []string{"-g", "(", path}, keyfinder.ErrInvalidPolicy},
		{"missing file", []string{filepath.Join(t.TempDir(), "nope")}, topfew.ErrOpen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := runTop(t, noopObservabilityInit, "", tt.args...)
			require.ErrorIs(t, err, tt.want)
		})
	}

	_, err := runTop(t, noopObservabilityInit, "", path, path)
	require.Error(t, err, "at most one file is accepted")
}

func TestTopCommand_InitializesObservability(t *testing.T) {
	t.Parallel()

	var (
		seenCfg        observability.Config
		shutdownCalled bool
	)

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	captureInit := func(cfg observability.Config) (observability.Providers, error) {
		seenCfg = cfg

		return observability.Providers{
			Tracer: tp.Tracer("test"),
			Meter:  mp.Meter("test"),
			Shutdown: func(_ context.Context) error {
				shutdownCalled = true

				return nil
			},
		}, nil
	}

	path := writeFile(t, "in.txt", "a\nb\na\n")
	metricsPath := filepath.Join(t.TempDir(), "topfew.prom")

	_, err := runTop(t, captureInit, "",
		"--debug-trace", "--metrics-file", metricsPath, "--log-level", "debug", "--chunk-size", "2B", path)
	require.NoError(t, err)

	assert.True(t, shutdownCalled, "providers.Shutdown must be called on exit")
	assert.Equal(t, observability.ModeCLI, seenCfg.Mode)
	assert.True(t, seenCfg.DebugTrace)
	assert.Equal(t, metricsPath, seenCfg.MetricsFile)
	assert.NotEmpty(t, seenCfg.ServiceVersion)

	spans := exporter.GetSpans()
	byName := make(map[string][]tracetest.SpanStub)

	for _, s := range spans {
		byName[s.Name] = append(byName[s.Name], s)
	}

	require.Len(t, byName["topfew.run"], 1)
	require.Len(t, byName["topfew.scan"], 1)
	assert.Len(t, byName["topfew.span"], 3)

	run := byName["topfew.run"][0]
	assert.Equal(t, run.SpanContext.SpanID(), byName["topfew.scan"][0].Parent.SpanID())

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	names := make(map[string]bool)

	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			names[m.Name] = true
		}
	}

	assert.True(t, names["topfew.lines.total"])
	assert.True(t, names["topfew.spans.total"])
}

func TestTopCommand_RecordsFailureOnRunSpan(t *testing.T) {
	t.Parallel()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	captureInit := func(_ observability.Config) (observability.Providers, error) {
		return observability.Providers{Tracer: tp.Tracer("test")}, nil
	}

	_, err := runTop(t, captureInit, "", filepath.Join(t.TempDir(), "missing"))
	require.ErrorIs(t, err, topfew.ErrOpen)

	var run *tracetest.SpanStub

	for _, s := range exporter.GetSpans() {
		if s.Name == "topfew.run" {
			run = &s
		}
	}

	require.NotNil(t, run)
	assert.Equal(t, "run failed", run.Status.Description)
}

func TestVersionCommand(t *testing.T) {
	t.Parallel()

	command := newTopCommandWithDeps(noopObservabilityInit)
	command.AddCommand(NewVersionCommand())

	var out bytes.Buffer

	command.SetOut(&out)
	command.SetArgs([]string{"version"})

	require.NoError(t, command.Execute())
	assert.True(t, strings.HasPrefix(out.String(), "topfew "), out.String())
	assert.Contains(t, out.String(), "commit:")
}
