package commands

import (
	"fmt"

	"github.com/slok/agentbox/internal/environment"
	"github.com/slok/agentbox/internal/environment/docker"
	"github.com/slok/agentbox/internal/environment/fake"
	"github.com/slok/agentbox/internal/log"
)

const (
	engineDocker = "docker"
	engineFake   = "fake"
)

// newEngine creates an environment engine by type name.
func newEngine(engineType string, logger log.Logger) (environment.Engine, error) {
	switch engineType {
	case engineDocker:
		return docker.NewEngine(docker.EngineConfig{
			Logger: logger,
		})
	case engineFake:
		return fake.NewEngine(fake.EngineConfig{
			Logger: logger,
		})
	}

	return nil, fmt.Errorf("unknown engine type: %s", engineType)
}
