package health

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistryAllHealthy(t *testing.T) {
	r := NewCheckerRegistry()
	r.Register(NewFuncChecker("bridge", func(context.Context) error { return nil }))

	h := r.Check(context.Background())
	assert.Equal(t, StatusHealthy, h.Status)
	assert.Equal(t, StatusHealthy, h.Checks["bridge"].Status)
}

func TestRegistryReportsFailure(t *testing.T) {
	r := NewCheckerRegistry()
	r.Register(NewFuncChecker("bridge", func(context.Context) error { return nil }))
	r.Register(NewFuncChecker("kafka", func(context.Context) error { return errors.New("no brokers") }))

	h := r.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, h.Status)
	assert.Equal(t, StatusUnhealthy, h.Checks["kafka"].Status)
	assert.Equal(t, "no brokers", h.Checks["kafka"].Message)
	assert.Equal(t, StatusHealthy, h.Checks["bridge"].Status)
}

func TestEmptyRegistryIsHealthy(t *testing.T) {
	assert.Equal(t, StatusHealthy, NewCheckerRegistry().Check(context.Background()).Status)
}
