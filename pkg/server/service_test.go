package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mikeboe/deep-research-agent/pkg/config"
)

func TestPerCallTimeout(t *testing.T) {
	svc := &Service{Cfg: &config.Config{PerCallTimeoutMs: 30000}}

	assert.Equal(t, 30*time.Second, svc.perCallTimeout(CreateJobRequest{}),
		"zero request value falls back to the configured default")
	assert.Equal(t, 5*time.Second, svc.perCallTimeout(CreateJobRequest{PerCallTimeoutMs: 5000}))
	assert.Equal(t, 30*time.Second, svc.perCallTimeout(CreateJobRequest{PerCallTimeoutMs: -1}))
}
