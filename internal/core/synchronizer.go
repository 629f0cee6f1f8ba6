// Package core implements the entity lifecycle engine: dirty tracking,
// flattening of reference graphs, reload reconciliation and the recursive
// save that persists every reachable entity once.
package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"

	"graphsync/pkg/domain"
)

// ErrUnsupportedValue is returned when a source value can be neither wrapped
// nor passed through.
var ErrUnsupportedValue = errors.New("unsupported value")

// Option configures a Synchronizer.
type Option func(*options)

type options struct {
	logger     hclog.Logger
	metrics    MetricsRecorder
	tracer     Tracer
	prototypes []Prototype
	plugins    []Plugin
}

// WithLogger sets the structured logger. The default discards output.
func WithLogger(l hclog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(t Tracer) Option {
	return func(o *options) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithPrototypes registers prototypes directly.
func WithPrototypes(p ...Prototype) Option {
	return func(o *options) { o.prototypes = append(o.prototypes, p...) }
}

// WithPlugins installs plugins, in order, after direct prototypes.
func WithPlugins(p ...Plugin) Option {
	return func(o *options) { o.plugins = append(o.plugins, p...) }
}

// Synchronizer creates entities, owns the prototype registry and delegates
// persistence to a storage backend. It caches no entities between calls.
type Synchronizer struct {
	backend  domain.Backend
	registry *Registry
	plugins  []PluginInfo
	logger   hclog.Logger
	metrics  MetricsRecorder
	tracer   Tracer
}

// New builds a Synchronizer over backend. The registry is fixed from here on.
func New(backend domain.Backend, opts ...Option) (*Synchronizer, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend required")
	}
	o := options{
		logger:  hclog.NewNullLogger(),
		metrics: noopMetrics{},
		tracer:  noopTracer{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	registry := NewRegistry()
	for _, p := range o.prototypes {
		if err := registry.Register(p); err != nil {
			return nil, err
		}
	}
	s := &Synchronizer{
		backend:  backend,
		registry: registry,
		logger:   o.logger,
		metrics:  o.metrics,
		tracer:   o.tracer,
	}
	for _, plugin := range o.plugins {
		info, err := installPlugin(registry, plugin)
		if err != nil {
			return nil, err
		}
		s.plugins = append(s.plugins, info)
		s.logger.Debug("plugin installed", "plugin", info.Name, "version", info.Version, "prototypes", info.Prototypes)
	}
	return s, nil
}

// Logger returns the synchronizer's logger.
func (s *Synchronizer) Logger() hclog.Logger { return s.logger }

// Plugins lists installed plugins.
func (s *Synchronizer) Plugins() []PluginInfo {
	out := make([]PluginInfo, len(s.plugins))
	copy(out, s.plugins)
	return out
}

// Prototype looks up a registered prototype.
func (s *Synchronizer) Prototype(name string) (*Prototype, bool) {
	return s.registry.Lookup(name)
}

// PrototypeName is the reverse lookup of Prototype.
func (s *Synchronizer) PrototypeName(p Prototype) (string, bool) {
	return s.registry.NameOf(p)
}

// PrototypeNames lists registered prototype names.
func (s *Synchronizer) PrototypeNames() []string { return s.registry.Names() }

// Configure prepares the backend namespace.
func (s *Synchronizer) Configure(ctx context.Context, namespace string) error {
	return s.observe(ctx, "configure", func(ctx context.Context) error {
		return s.backend.Configure(ctx, namespace)
	})
}

// Save hands a flat record to the backend unchanged.
func (s *Synchronizer) Save(ctx context.Context, record domain.Record) error {
	return s.backend.Save(ctx, record)
}

// Reload fetches a flat record from the backend unchanged.
func (s *Synchronizer) Reload(ctx context.Context, id string) (domain.Record, error) {
	return s.backend.Reload(ctx, id)
}

// Create wraps v as an entity. Entities and primitives (strings, booleans,
// numbers, nil) are returned unchanged. Maps, slices and domain.Object
// values produce a new entity; typed maps and slices are first converted to
// map[string]any and []any.
func (s *Synchronizer) Create(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case *Entity:
		return x, nil
	case string, bool, json.Number,
		float32, float64, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return v, nil
	case map[string]any, []any, domain.Object:
		return s.CreateEntity(x)
	}
	nv, err := normalizeValue(v)
	if err != nil {
		return nil, err
	}
	if isObjectShaped(nv) {
		return s.CreateEntity(nv)
	}
	return nv, nil
}

// CreateEntity builds a new entity from an object-shaped source. An "id"
// field selects the entity id; otherwise one is generated.
func (s *Synchronizer) CreateEntity(v any) (*Entity, error) {
	switch x := v.(type) {
	case *Entity:
		return x, nil
	case domain.Object:
		name := ""
		if _, ok := s.registry.Lookup(x.Prototype); ok {
			name = x.Prototype
		}
		return s.fromFields(x.Fields, name)
	case map[string]any:
		return s.fromFields(x, "")
	case []any:
		items, err := normalizeSlice(x)
		if err != nil {
			return nil, err
		}
		name := ""
		if _, ok := s.registry.Lookup(SequencePrototype); ok {
			name = SequencePrototype
		}
		return s.newEntity(newID(), name, newSequenceData(items))
	}
	nv, err := normalizeValue(v)
	if err != nil {
		return nil, err
	}
	if !isObjectShaped(nv) {
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
	}
	return s.CreateEntity(nv)
}

func (s *Synchronizer) fromFields(fields map[string]any, name string) (*Entity, error) {
	id := newID()
	if raw, ok := fields["id"]; ok {
		var err error
		if id, err = validateID(raw); err != nil {
			return nil, err
		}
	}
	data, err := normalizeMap(fields)
	if err != nil {
		return nil, err
	}
	delete(data, "id")
	return s.newEntity(id, name, newObjectData(data))
}

// Reference returns an untyped, unpopulated entity for id. Reload fills it.
func (s *Synchronizer) Reference(id string) (*Entity, error) {
	if _, err := validateID(id); err != nil {
		return nil, err
	}
	return s.newEntity(id, "", newObjectData(nil))
}

// CreateFromSerializedData builds an entity from a flat record, as produced
// by Entity.SerializedCurrentData. Record.ID carries no presence bit, so the
// empty string means "no id" and one is generated. Decode untrusted input
// with CreateFromJSON, which rejects an explicit "id": "".
func (s *Synchronizer) CreateFromSerializedData(record domain.Record) (*Entity, error) {
	id := record.ID
	if id == "" {
		id = newID()
	}
	name := ""
	if _, ok := s.registry.Lookup(record.PrototypeName); ok {
		name = record.PrototypeName
	}
	var data *Data
	switch x := record.Data.(type) {
	case nil:
		data = newObjectData(nil)
	case map[string]any:
		fields, err := normalizeMap(x)
		if err != nil {
			return nil, err
		}
		data = newObjectData(fields)
	case []any:
		items, err := normalizeSlice(x)
		if err != nil {
			return nil, err
		}
		data = newSequenceData(items)
	default:
		return nil, fmt.Errorf("%w: record data %T", ErrUnsupportedValue, record.Data)
	}
	return s.newEntity(id, name, data)
}

// CreateFromJSON decodes a flat record and builds an entity from it. An id
// that is present must be a non-empty string.
func (s *Synchronizer) CreateFromJSON(b []byte) (*Entity, error) {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	if v, ok := raw["id"]; ok {
		if _, err := validateID(v); err != nil {
			return nil, err
		}
	}
	record, err := domain.RecordFromMap(raw)
	if err != nil {
		return nil, err
	}
	return s.CreateFromSerializedData(record)
}

func (s *Synchronizer) newEntity(id, name string, data *Data) (*Entity, error) {
	e := &Entity{owner: s, id: id, current: data}
	if err := e.attach(name); err != nil {
		return nil, err
	}
	if e.proto != nil && e.proto.Validate != nil {
		if err := e.proto.Validate(e.current); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// SaveAll saves several roots as one traversal: entities reachable from more
// than one root are persisted once. Every failure is reported.
func (s *Synchronizer) SaveAll(ctx context.Context, roots ...*Entity) error {
	return s.observe(ctx, "save_all", func(ctx context.Context) error {
		arena := newSaveArena()
		var claimed []*Entity
		for _, root := range roots {
			if root != nil && arena.claim(root) {
				claimed = append(claimed, root)
			}
		}
		var (
			mu     sync.Mutex
			result *multierror.Error
			wg     sync.WaitGroup
		)
		for _, root := range claimed {
			root := root
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := root.save(ctx, arena); err != nil {
					mu.Lock()
					result = multierror.Append(result, fmt.Errorf("save %s: %w", root.ID(), err))
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		return result.ErrorOrNil()
	})
}

func (s *Synchronizer) observe(ctx context.Context, op string, fn func(context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, op)
	started := time.Now()
	err := fn(ctx)
	s.metrics.Observe(ctx, op, err == nil, time.Since(started))
	span.End(err)
	return err
}
