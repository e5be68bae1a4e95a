package service

import (
	"github.com/okian/scout/internal/adapters/connector"
	"github.com/okian/scout/internal/adapters/repository"
	"github.com/okian/scout/internal/config"
	"github.com/okian/scout/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig sets the configuration the service is built from.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRegistry replaces the connectors built from configuration.
func WithRegistry(reg *connector.Registry) Option {
	return func(s *Service) {
		if reg != nil {
			s.registry = reg
		}
	}
}

// WithDirectory replaces the talent directory chosen by configuration.
func WithDirectory(dir repository.Directory) Option {
	return func(s *Service) {
		if dir != nil {
			s.directory = dir
		}
	}
}
