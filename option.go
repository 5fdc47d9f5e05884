package wavepool

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/wavepool/wavepool/internal/hostinfo"
	"github.com/wavepool/wavepool/model/protocol"
	"github.com/wavepool/wavepool/service/locator"
	"github.com/wavepool/wavepool/service/pool"
	"github.com/wavepool/wavepool/service/registry"
	"github.com/wavepool/wavepool/service/unit"
	"github.com/wavepool/wavepool/tracing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Option customises the engine facade.
type Option func(s *Service)

// WithConfig replaces the whole engine configuration.
func WithConfig(config *Config) Option {
	return func(s *Service) {
		if config != nil {
			s.config = config
		}
	}
}

// WithModules registers worker modules at construction time.
func WithModules(modules ...*registry.Module) Option {
	return func(s *Service) {
		s.modules = append(s.modules, modules...)
	}
}

// WithRegistry replaces the worker module registry.
func WithRegistry(reg *registry.Service) Option {
	return func(s *Service) {
		s.registry = reg
	}
}

// WithStyle selects the execution unit flavour.
func WithStyle(style unit.Style) Option {
	return func(s *Service) {
		s.config.Unit.Style = style
	}
}

// WithConvention selects the module locator convention.
func WithConvention(convention locator.Convention) Option {
	return func(s *Service) {
		s.config.Locator.Convention = convention
	}
}

// WithUnits sets the number of execution units.
func WithUnits(units int) Option {
	return func(s *Service) {
		s.config.Pool.Units = units
	}
}

// WithMaxInFlight sets the admission bound.
func WithMaxInFlight(max int) Option {
	return func(s *Service) {
		s.config.Pool.MaxInFlight = max
	}
}

// WithPollInterval tunes the pool capacity and completion waits.
func WithPollInterval(interval time.Duration) Option {
	return func(s *Service) {
		s.config.Pool.PollInterval = interval
	}
}

// WithLocation sets the worker module locator dispatched units are built
// from.
func WithLocation(location string) Option {
	return func(s *Service) {
		s.config.Pool.Location = location
	}
}

// WithCores injects the logical core prober used to size the pool when the
// configuration leaves Units unset.
func WithCores(prober hostinfo.Prober) Option {
	return func(s *Service) {
		s.cores = prober
	}
}

// WithCodec overrides the boundary codec used by port-style units.
func WithCodec(codec protocol.Codec) Option {
	return func(s *Service) {
		s.codec = codec
	}
}

// WithLogger replaces the engine logger.
func WithLogger(logger *logrus.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithOnResult installs the pool result callback.
func WithOnResult(fn func(result *protocol.Message)) Option {
	return func(s *Service) {
		s.poolOptions = append(s.poolOptions, pool.WithOnResult(fn))
	}
}

// WithOnError installs the pool error callback.
func WithOnError(fn func(err error, seq int64)) Option {
	return func(s *Service) {
		s.poolOptions = append(s.poolOptions, pool.WithOnError(fn))
	}
}

// WithOnAllComplete installs the wave-completion callback.
func WithOnAllComplete(fn func()) Option {
	return func(s *Service) {
		s.poolOptions = append(s.poolOptions, pool.WithOnAllComplete(fn))
	}
}

// WithTracing configures OpenTelemetry tracing for the engine. If
// outputFile is empty the stdout exporter is used; otherwise traces are
// written to the supplied file path. Safe to call multiple times; the first
// successful initialisation wins.
func WithTracing(serviceName, serviceVersion, outputFile string) Option {
	return func(s *Service) {
		_ = tracing.Init(serviceName, serviceVersion, outputFile)
	}
}

// WithTracingExporter configures OpenTelemetry tracing using a custom
// SpanExporter, enabling integration with back-ends other than the built-in
// stdout exporter. Safe to call multiple times; the first successful
// initialisation wins.
func WithTracingExporter(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) Option {
	return func(s *Service) {
		_ = tracing.InitWithExporter(serviceName, serviceVersion, exporter)
	}
}
