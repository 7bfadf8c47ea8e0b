package cron

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryKeepsRunOrder(t *testing.T) {
	autostart := &stubJob{name: "trip-autostart"}
	expiry := &stubJob{name: "payment-expiry"}
	registry := NewRegistry(autostart, nil)
	require.NoError(t, registry.Register(expiry))
	require.NoError(t, registry.Register(nil))

	jobs := registry.Jobs()
	require.Len(t, jobs, 2)
	assert.Same(t, autostart, jobs[0])
	assert.Same(t, expiry, jobs[1])
	assert.Equal(t, []string{"trip-autostart", "payment-expiry"}, registry.Names())

	jobs[0] = nil
	assert.NotNil(t, registry.Jobs()[0], "Jobs must not expose the internal slice")
}

func TestRegistryRejectsDuplicateAndEmptyNames(t *testing.T) {
	registry := NewRegistry(&stubJob{name: "payment-expiry"})

	assert.Error(t, registry.Register(&stubJob{name: "payment-expiry"}))
	assert.Error(t, registry.Register(&stubJob{}))
	assert.Len(t, registry.Jobs(), 1)

	assert.Panics(t, func() {
		NewRegistry(&stubJob{name: "trip-autostart"}, &stubJob{name: "trip-autostart"})
	})
}
