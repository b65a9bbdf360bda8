package odm

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/shmookey/coconut/pkg/errdefs"
	"github.com/shmookey/coconut/pkg/logger"
	"github.com/shmookey/coconut/pkg/metrics"
	"github.com/shmookey/coconut/pkg/schema"
	"github.com/shmookey/coconut/pkg/store"
)

// Auditor receives the change set of every successful save of a type that
// is not itself an audit record.
type Auditor interface {
	Record(ctx context.Context, doc *Document, sets, unsets Delta) error
}

// Session binds a registry of document types to one store.
type Session struct {
	store   store.Store
	clock   func() time.Time
	log     zerolog.Logger
	mu      sync.RWMutex
	types   map[string]*Type
	byColl  map[string]*Type
	auditor Auditor
}

type Option func(*Session)

// WithClock replaces time.Now as the source of revision timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.clock = now }
}

func WithAuditor(a Auditor) Option {
	return func(s *Session) { s.auditor = a }
}

func NewSession(st store.Store, opts ...Option) *Session {
	s := &Session{
		store:  st,
		clock:  time.Now,
		log:    logger.Component("odm"),
		types:  map[string]*Type{},
		byColl: map[string]*Type{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Session) Store() store.Store { return s.store }

func (s *Session) Now() time.Time { return s.clock() }

// SetAuditor installs (or, with nil, removes) the auditor.
func (s *Session) SetAuditor(a Auditor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auditor = a
}

func (s *Session) currentAuditor() Auditor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.auditor
}

// Type options.
type TypeOption func(*Type)

// WithCollection stores the type under a collection name other than its own.
func WithCollection(name string) TypeOption {
	return func(t *Type) { t.collection = name }
}

// AuditRecord marks a type whose saves are never themselves audited.
func AuditRecord() TypeOption {
	return func(t *Type) { t.audit = true }
}

// Register declares a document type. The schema must describe a map.
func (s *Session) Register(name string, sch *schema.Schema, opts ...TypeOption) (*Type, error) {
	if name == "" {
		return nil, &errdefs.SchemaTypeError{Detail: "document type needs a name"}
	}
	if sch == nil || sch.Kind == schema.KindAny {
		sch = schema.AnyMap()
	}
	if sch.Kind != schema.KindMap {
		return nil, &errdefs.SchemaTypeError{Detail: "document " + name + " must be a map, not " + sch.Kind.String()}
	}
	if err := schema.Validate(sch); err != nil {
		return nil, errors.Wrapf(err, "document %s", name)
	}
	t := &Type{name: name, collection: name, schema: sch, sess: s}
	for _, o := range opts {
		o(t)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.types[name]; dup {
		return nil, &errdefs.SchemaTypeError{Detail: "document type " + name + " already registered"}
	}
	if _, dup := s.byColl[t.collection]; dup {
		return nil, &errdefs.SchemaTypeError{Detail: "collection " + t.collection + " already in use"}
	}
	s.types[name] = t
	s.byColl[t.collection] = t
	return t, nil
}

// MustRegister is Register for package-level type declarations.
func (s *Session) MustRegister(name string, sch *schema.Schema, opts ...TypeOption) *Type {
	t, err := s.Register(name, sch, opts...)
	if err != nil {
		panic(err)
	}
	return t
}

func (s *Session) Type(name string) (*Type, bool) {
	if s == nil {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.types[name]
	return t, ok
}

// Types lists the registered types by name.
func (s *Session) Types() []*Type {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Type, 0, len(s.types))
	for _, t := range s.types {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// typeNameFor maps a collection back to its type name, falling back to the
// collection itself.
func (s *Session) typeNameFor(collection string) string {
	if s == nil {
		return collection
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.byColl[collection]; ok {
		return t.name
	}
	return collection
}

// EnsureIndexes passes the index and unique modifiers of every registered
// type through to the store.
func (s *Session) EnsureIndexes(ctx context.Context) error {
	for _, t := range s.Types() {
		for _, idx := range schema.IndexedFields(t.schema) {
			metrics.StoreOperations.WithLabelValues("ensure_index").Inc()
			if err := s.store.EnsureIndex(ctx, t.collection, idx.Field, idx.Unique); err != nil {
				return errors.Wrapf(err, "index %s.%s", t.name, idx.Field)
			}
			s.log.Debug().Str("type", t.name).Str("field", idx.Field).Bool("unique", idx.Unique).Msg("index ensured")
		}
	}
	return nil
}

// Type is a registered document type.
type Type struct {
	name       string
	collection string
	schema     *schema.Schema
	audit      bool
	sess       *Session
}

func (t *Type) Name() string           { return t.name }
func (t *Type) Collection() string     { return t.collection }
func (t *Type) Schema() *schema.Schema { return t.schema }
func (t *Type) IsAuditRecord() bool    { return t.audit }
func (t *Type) Session() *Session      { return t.sess }

// Field is a keyword argument to New.
type Field struct {
	Key   string
	Value interface{}
}

func F(key string, value interface{}) Field { return Field{Key: key, Value: value} }

// New builds an unsaved document from either a raw mapping or keyword
// fields. Declared fields missing from the input get their default or null.
func (t *Type) New(data map[string]interface{}, fields ...Field) (*Document, error) {
	if len(data) > 0 && len(fields) > 0 {
		return nil, errdefs.ErrMixedConstruction
	}
	if len(fields) > 0 {
		data = make(map[string]interface{}, len(fields))
		for _, f := range fields {
			data[f.Key] = f.Value
		}
	}
	return t.construct(data)
}

func (t *Type) construct(data map[string]interface{}) (*Document, error) {
	d := &Document{typ: t, active: true}
	d.Map = newMap(t.schema, nil)
	d.Map.root = d

	rest := make(map[string]interface{}, len(data))
	for k, v := range data {
		rest[k] = v
	}
	switch id := rest[store.IDField].(type) {
	case store.ID:
		d.id = id
	case string:
		d.id = store.ID(id)
	}
	delete(rest, store.IDField)
	if active, ok := rest[store.ActiveField].(bool); ok {
		d.active = active
	}
	delete(rest, store.ActiveField)

	if err := d.Map.fill(rest); err != nil {
		return nil, errors.Wrap(err, t.name)
	}
	return d, nil
}

// load builds a clean document from a stored record.
func (t *Type) load(raw map[string]interface{}) (*Document, error) {
	d, err := t.construct(raw)
	if err != nil {
		return nil, err
	}
	d.Flush()
	return d, nil
}

func (t *Type) activeCriteria(criteria store.Criteria) store.Criteria {
	return criteria.With(store.ActiveField, true)
}

// Get fetches an active document by identifier. id may be a store.ID, a
// string or a *Link.
func (t *Type) Get(ctx context.Context, id interface{}) (*Document, error) {
	var key store.ID
	switch v := id.(type) {
	case store.ID:
		key = v
	case string:
		key = store.ID(v)
	case *Link:
		if v.typeName != t.name {
			return nil, &errdefs.ValidationTypeError{Expected: t.name, Got: v.typeName}
		}
		return v.Dereference(ctx)
	default:
		return nil, &errdefs.ValidationTypeError{Expected: "identifier", Got: typeName(id)}
	}
	metrics.StoreOperations.WithLabelValues("find_one").Inc()
	raw, err := t.sess.store.FindOne(ctx, t.collection, t.activeCriteria(store.Criteria{store.IDField: key}))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &errdefs.DocumentNotFound{Type: t.name, ID: string(key)}
		}
		return nil, errors.Wrapf(err, "get %s %s", t.name, key)
	}
	return t.load(raw)
}

// FindFirst returns the first active document matching criteria.
func (t *Type) FindFirst(ctx context.Context, criteria store.Criteria) (*Document, error) {
	metrics.StoreOperations.WithLabelValues("find_one").Inc()
	raw, err := t.sess.store.FindOne(ctx, t.collection, t.activeCriteria(criteria))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &errdefs.DocumentNotFound{Type: t.name, Criteria: criteria}
		}
		return nil, errors.Wrapf(err, "find %s", t.name)
	}
	return t.load(raw)
}

// Find returns every active document matching criteria.
func (t *Type) Find(ctx context.Context, criteria store.Criteria, opts store.FindOptions) ([]*Document, error) {
	metrics.StoreOperations.WithLabelValues("find").Inc()
	raws, err := t.sess.store.Find(ctx, t.collection, t.activeCriteria(criteria), opts)
	if err != nil {
		return nil, errors.Wrapf(err, "find %s", t.name)
	}
	out := make([]*Document, 0, len(raws))
	for _, raw := range raws {
		d, err := t.load(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}
