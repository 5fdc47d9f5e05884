package unit

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/wavepool/wavepool/model/protocol"
	"github.com/wavepool/wavepool/service/locator"
	"github.com/wavepool/wavepool/service/registry"
	"github.com/wavepool/wavepool/service/unit/channel"
	"github.com/wavepool/wavepool/service/unit/port"
)

// ensure both adapters satisfy the Unit contract
var (
	_ Unit = (*channel.Unit)(nil)
	_ Unit = (*port.Unit)(nil)
)

// Factory constructs execution units for the configured native style.
type Factory struct {
	runtime  Runtime
	registry *registry.Service
	resolver *locator.Resolver
	codec    protocol.Codec
	buffer   int
	logger   *logrus.Entry
}

// FactoryOption customises a Factory.
type FactoryOption func(*Factory)

// WithCodec overrides the boundary codec used by port-style units.
func WithCodec(codec protocol.Codec) FactoryOption {
	return func(f *Factory) {
		if codec != nil {
			f.codec = codec
		}
	}
}

// WithBuffer overrides the unit channel buffer size.
func WithBuffer(size int) FactoryOption {
	return func(f *Factory) {
		if size > 0 {
			f.buffer = size
		}
	}
}

// WithLogger overrides the factory logger.
func WithLogger(logger *logrus.Entry) FactoryOption {
	return func(f *Factory) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewFactory creates a unit factory bound to a module registry and a
// locator resolver.
func NewFactory(runtime Runtime, reg *registry.Service, resolver *locator.Resolver, opts ...FactoryOption) *Factory {
	ret := &Factory{
		runtime:  runtime,
		registry: reg,
		resolver: resolver,
		codec:    protocol.JSON(),
		buffer:   channel.DefaultBuffer,
		logger:   logrus.NewEntry(logrus.StandardLogger()),
	}
	if ret.runtime.Style == "" {
		ret.runtime.Style = StyleChannel
	}
	if ret.resolver == nil {
		ret.resolver = locator.New(locator.ConventionPath)
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// Runtime returns the injected runtime-detection capability.
func (f *Factory) Runtime() Runtime {
	return f.runtime
}

// New resolves the module locator and constructs a unit for the configured
// native style.
func (f *Factory) New(ctx context.Context, location string) (Unit, error) {
	resolved, err := f.resolver.Resolve(location)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve module locator %v: %w", location, err)
	}
	module := f.registry.Lookup(resolved)
	if module == nil {
		module = f.registry.Lookup(location)
	}
	if module == nil {
		return nil, fmt.Errorf("module %v not registered", resolved)
	}
	handler := f.registry.HandlerFor(module)
	switch f.runtime.Style {
	case StylePort:
		return port.New(handler,
			port.WithBuffer(f.buffer),
			port.WithCodec(f.codec),
			port.WithLogger(f.logger)), nil
	case StyleChannel:
		return channel.New(handler,
			channel.WithBuffer(f.buffer),
			channel.WithLogger(f.logger)), nil
	}
	return nil, fmt.Errorf("unsupported unit style %v", f.runtime.Style)
}
