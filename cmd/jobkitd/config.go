package main

import (
	"errors"

	"github.com/dmitrymomot/jobkit/pkg/config"
	"github.com/dmitrymomot/jobkit/pkg/httpserver"
	"github.com/dmitrymomot/jobkit/pkg/logger"
	"github.com/dmitrymomot/jobkit/pkg/queue"
)

// appConfig selects the storage backend and the topology file.
type appConfig struct {
	Storage  string `env:"JOBKIT_STORAGE" envDefault:"memory"`
	Topology string `env:"JOBKIT_TOPOLOGY" envDefault:"jobkit.yaml"`
}

type settings struct {
	app    appConfig
	log    logger.Config
	http   httpserver.Config
	queues queue.Config
}

func loadSettings() (settings, error) {
	var s settings
	err := errors.Join(
		config.Load(&s.app),
		config.Load(&s.log),
		config.Load(&s.http),
		config.Load(&s.queues),
	)
	return s, err
}
