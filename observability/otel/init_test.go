package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestParseHeaders(t *testing.T) {
	headers := ParseHeaders(" api-key = secret ,empty=,novalue, =dropped,x=1")
	require.Equal(t, map[string]string{
		"api-key": "secret",
		"empty":   "",
		"x":       "1",
	}, headers)
	require.Empty(t, ParseHeaders(""))
}

func TestInitRequiresServiceName(t *testing.T) {
	_, err := Init(context.Background(), Config{})
	require.Error(t, err)
}

func TestInitWithoutExportersShutsDownCleanly(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "subsyncd-test"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestSamplerRatio(t *testing.T) {
	require.Contains(t, Config{}.sampler().Description(), "AlwaysOnSampler")
	require.Contains(t, Config{SampleRatio: 2}.sampler().Description(), "AlwaysOnSampler")
	require.Contains(t, Config{SampleRatio: 0.25}.sampler().Description(), "TraceIDRatioBased{0.25}")
	var _ sdktrace.Sampler = Config{}.sampler()
}
