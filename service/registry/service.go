// Package registry keeps worker handler modules addressable by resolved
// module locator. A module may declare a payload type; payloads decoded at
// the execution boundary are then converted into a fresh typed instance
// before the handler runs.
package registry

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/viant/structology/conv"
	"github.com/viant/x"
	"github.com/wavepool/wavepool/model/protocol"
	"github.com/wavepool/wavepool/service/dispatch"
)

// Module is a named worker entry point.
type Module struct {
	Name    string
	Handler dispatch.Handler
	Type    *x.Type
}

// Service is the handler module registry.
type Service struct {
	types     *x.Registry
	converter *conv.Converter
	mu        sync.RWMutex
	modules   map[string]*Module
}

// New creates an empty registry.
func New(options ...x.RegistryOption) *Service {
	converterOptions := conv.DefaultOptions()
	converterOptions.ClonePointerData = true
	converterOptions.IgnoreUnmapped = true
	converterOptions.AccessUnexported = true
	return &Service{
		types:     x.NewRegistry(options...),
		converter: conv.NewConverter(converterOptions),
		modules:   make(map[string]*Module),
	}
}

// Register adds a handler module; a declared payload type is also added to
// the type registry.
func (s *Service) Register(module *Module) error {
	if module == nil || module.Name == "" {
		return fmt.Errorf("module name was empty")
	}
	if module.Handler == nil {
		return fmt.Errorf("module %v handler was nil", module.Name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if module.Type != nil {
		s.types.Register(module.Type)
	}
	s.modules[module.Name] = module
	return nil
}

// Lookup returns the module registered under the supplied name or nil.
func (s *Service) Lookup(name string) *Module {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.modules[name]
}

// Types exposes the payload type registry.
func (s *Service) Types() *x.Registry {
	return s.types
}

// HandlerFor wraps the module handler with payload conversion when the
// module declares a payload type.
func (s *Service) HandlerFor(module *Module) dispatch.Handler {
	if module.Type == nil {
		return module.Handler
	}
	return func(ctx context.Context, job *protocol.Message) (interface{}, error) {
		instance := reflect.New(module.Type.Type).Interface()
		if job.Payload != nil {
			if err := s.converter.Convert(job.Payload, instance); err != nil {
				return nil, fmt.Errorf("failed to convert payload for module %v: %w", module.Name, err)
			}
		}
		typed := *job
		typed.Payload = instance
		return module.Handler(ctx, &typed)
	}
}
