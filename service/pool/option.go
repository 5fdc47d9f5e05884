package pool

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/wavepool/wavepool/model/protocol"
)

// Option customises the pool service.
type Option func(s *Service)

// WithConfig replaces the whole pool configuration.
func WithConfig(config Config) Option {
	return func(s *Service) {
		s.config = config
	}
}

// WithUnits sets the number of execution units.
func WithUnits(units int) Option {
	return func(s *Service) {
		s.config.Units = units
	}
}

// WithMaxInFlight sets the admission bound.
func WithMaxInFlight(max int) Option {
	return func(s *Service) {
		s.config.MaxInFlight = max
	}
}

// WithPollInterval tunes the capacity and completion waits.
func WithPollInterval(interval time.Duration) Option {
	return func(s *Service) {
		s.config.PollInterval = interval
	}
}

// WithLocation sets the worker module locator passed to the unit factory.
func WithLocation(location string) Option {
	return func(s *Service) {
		s.config.Location = location
	}
}

// WithLogger replaces the pool logger.
func WithLogger(logger *logrus.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithOnResult installs the result callback.
func WithOnResult(fn func(result *protocol.Message)) Option {
	return func(s *Service) {
		s.onResult = fn
	}
}

// WithOnError installs the error callback.
func WithOnError(fn func(err error, seq int64)) Option {
	return func(s *Service) {
		s.onError = fn
	}
}

// WithOnAllComplete installs the wave-completion callback.
func WithOnAllComplete(fn func()) Option {
	return func(s *Service) {
		s.onAllComplete = fn
	}
}
