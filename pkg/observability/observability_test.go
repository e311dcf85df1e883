package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestNew_Disabled(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, p)

	assert.NotNil(t, p.Tracer())
	assert.NotNil(t, p.Meter())
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestTrackOperation_DisabledIsNoop(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)

	ctx, done := p.TrackOperation(context.Background(), "manifest.preview",
		ModuleAttrs("org-test", "crm")...)
	require.NotNil(t, ctx)
	done(nil)

	_, done = p.TrackOperation(context.Background(), "store.apply")
	done(errors.New("boom"))
}

func TestModuleAttrs(t *testing.T) {
	attrs := ModuleAttrs("org-test", "crm")
	require.Len(t, attrs, 2)
	assert.Equal(t, attribute.String("forma.org_id", "org-test"), attrs[0])
	assert.Equal(t, attribute.String("forma.module_id", "crm"), attrs[1])
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "forma-core", cfg.ServiceName)
	assert.Equal(t, 1.0, cfg.SampleRate)
	assert.True(t, cfg.Enabled)
}
