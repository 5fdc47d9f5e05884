package wavepool

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/wavepool/wavepool/internal/hostinfo"
	"github.com/wavepool/wavepool/model/protocol"
	"github.com/wavepool/wavepool/service/locator"
	"github.com/wavepool/wavepool/service/pool"
	"github.com/wavepool/wavepool/service/registry"
	"github.com/wavepool/wavepool/service/unit"
)

// Service is the engine facade. It owns the worker module registry, the
// execution unit factory and the dispatch pool, wiring them together from a
// single configuration.
type Service struct {
	config      *Config
	registry    *registry.Service
	factory     *unit.Factory
	pool        *pool.Service
	cores       hostinfo.Prober
	codec       protocol.Codec
	logger      *logrus.Entry
	modules     []*registry.Module
	poolOptions []pool.Option
}

// New assembles an engine from the supplied options. Units default to the
// logical core count when the configuration leaves them unset.
func New(options ...Option) (*Service, error) {
	ret := &Service{
		config: DefaultConfig(),
		logger: logrus.WithField("service", "wavepool"),
	}
	for _, option := range options {
		option(ret)
	}
	if err := ret.init(); err != nil {
		return nil, err
	}
	return ret, nil
}

// NewFromURL assembles an engine from a YAML configuration document.
// Options are applied after the configuration loads, so they take
// precedence over the document.
func NewFromURL(ctx context.Context, URL string, options ...Option) (*Service, error) {
	config, err := LoadConfig(ctx, URL)
	if err != nil {
		return nil, err
	}
	return New(append([]Option{WithConfig(config)}, options...)...)
}

func (s *Service) init() error {
	if err := s.config.Validate(); err != nil {
		return err
	}
	if s.config.Pool.Units == 0 {
		s.config.Pool.Units = hostinfo.Logical(s.cores)
	}
	if s.registry == nil {
		s.registry = registry.New()
	}
	for _, module := range s.modules {
		if err := s.registry.Register(module); err != nil {
			return err
		}
	}

	var locatorOptions []locator.Option
	if s.config.Locator.VolumeNaming {
		locatorOptions = append(locatorOptions, locator.WithVolumeNaming(true))
	}
	resolver := locator.New(s.config.Locator.Convention, locatorOptions...)

	runtime := unit.Runtime{Style: s.config.Unit.Style, Cores: s.cores}
	var factoryOptions []unit.FactoryOption
	if s.codec != nil {
		factoryOptions = append(factoryOptions, unit.WithCodec(s.codec))
	}
	if s.config.Unit.Buffer > 0 {
		factoryOptions = append(factoryOptions, unit.WithBuffer(s.config.Unit.Buffer))
	}
	factoryOptions = append(factoryOptions, unit.WithLogger(s.logger))
	s.factory = unit.NewFactory(runtime, s.registry, resolver, factoryOptions...)

	poolOptions := append([]pool.Option{
		pool.WithConfig(s.config.Pool),
		pool.WithLogger(s.logger),
	}, s.poolOptions...)
	created, err := pool.New(s.factory, poolOptions...)
	if err != nil {
		return fmt.Errorf("failed to assemble pool: %w", err)
	}
	s.pool = created
	return nil
}

// Register adds a worker module to the registry. Modules registered after
// units exist only affect units created later.
func (s *Service) Register(module *registry.Module) error {
	return s.registry.Register(module)
}

// Pool exposes the dispatch pool for direct control.
func (s *Service) Pool() *pool.Service {
	return s.pool
}

// Post admits and dispatches a single job envelope.
func (s *Service) Post(ctx context.Context, job *protocol.Message) error {
	return s.pool.Post(ctx, job)
}

// Broadcast delivers an out-of-band payload to every live execution unit.
func (s *Service) Broadcast(ctx context.Context, payload interface{}) error {
	return s.pool.Broadcast(ctx, payload)
}

// WaitForCompletion blocks until no admitted work remains.
func (s *Service) WaitForCompletion(ctx context.Context) error {
	return s.pool.WaitForCompletion(ctx)
}

// Stats returns a snapshot of the pool counters.
func (s *Service) Stats() pool.Stats {
	return s.pool.Stats()
}

// Close tears the engine down; with drain set it first awaits outstanding
// jobs.
func (s *Service) Close(ctx context.Context, drain bool) error {
	return s.pool.Close(ctx, drain)
}
