package model

import (
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode"
)

// Builder assembles a Model from Go struct types. It covers the minimal
// configuration the runtime needs: tables, keys, nullability,
// concurrency tokens, custom comparers, and foreign keys. Navigations
// are discovered from struct fields that point at registered types.
type Builder struct {
	entities []*entityConfig
}

type entityConfig struct {
	sample     any
	table      string
	key        []string
	nullable   map[string]bool
	tokens     map[string]bool
	comparers  map[string]Comparer
	foreignKey map[string][]string // navigation field -> fk property names
}

// NewBuilder creates an empty model builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Entity registers an entity type from a sample pointer-to-struct and
// its table name. Returns an EntityBuilder for further configuration.
func (b *Builder) Entity(sample any, table string) *EntityBuilder {
	cfg := &entityConfig{
		sample:     sample,
		table:      table,
		nullable:   make(map[string]bool),
		tokens:     make(map[string]bool),
		comparers:  make(map[string]Comparer),
		foreignKey: make(map[string][]string),
	}
	b.entities = append(b.entities, cfg)
	return &EntityBuilder{cfg: cfg}
}

// EntityBuilder configures one registered entity type.
type EntityBuilder struct {
	cfg *entityConfig
}

// Key declares the key properties by field name. Types without a key
// remain keyless and cannot be tracked.
func (e *EntityBuilder) Key(fields ...string) *EntityBuilder {
	e.cfg.key = fields
	return e
}

// Nullable marks properties as mapping to nullable columns. Foreign key
// properties of optional relationships should be nullable.
func (e *EntityBuilder) Nullable(fields ...string) *EntityBuilder {
	for _, f := range fields {
		e.cfg.nullable[f] = true
	}
	return e
}

// ConcurrencyToken marks properties as optimistic-concurrency tokens.
func (e *EntityBuilder) ConcurrencyToken(fields ...string) *EntityBuilder {
	for _, f := range fields {
		e.cfg.tokens[f] = true
	}
	return e
}

// UseComparer sets a custom value comparer for a property.
func (e *EntityBuilder) UseComparer(field string, c Comparer) *EntityBuilder {
	e.cfg.comparers[field] = c
	return e
}

// ForeignKey binds a reference navigation to the dependent-side
// properties that mirror the principal key.
func (e *EntityBuilder) ForeignKey(navigation string, fkFields ...string) *EntityBuilder {
	e.cfg.foreignKey[navigation] = fkFields
	return e
}

// Build finalizes the model. After Build the model is immutable.
func (b *Builder) Build() (*Model, error) {
	m := &Model{
		byName:   make(map[string]*EntityType),
		byGoType: make(map[reflect.Type]*EntityType),
	}

	// First pass: register types so navigation targets resolve.
	for _, cfg := range b.entities {
		t := reflect.TypeOf(cfg.sample)
		if t == nil || t.Kind() != reflect.Ptr || t.Elem().Kind() != reflect.Struct {
			return nil, fmt.Errorf("entity sample for table %q must be a pointer to struct", cfg.table)
		}
		name := t.Elem().Name()
		if _, dup := m.byName[name]; dup {
			return nil, fmt.Errorf("entity type %q registered twice", name)
		}
		et := &EntityType{name: name, table: cfg.table, goType: t}
		m.types = append(m.types, et)
		m.byName[name] = et
		m.byGoType[t] = et
	}

	// Second pass: properties and navigations.
	for i, cfg := range b.entities {
		if err := b.buildEntity(m, m.types[i], cfg); err != nil {
			return nil, fmt.Errorf("entity %s: %w", m.types[i].name, err)
		}
	}

	m.skipDetectChanges = computeSkipDetectChanges(m)
	return m, nil
}

func (b *Builder) buildEntity(m *Model, et *EntityType, cfg *entityConfig) error {
	structType := et.goType.Elem()
	ordinal := 0

	for f := 0; f < structType.NumField(); f++ {
		field := structType.Field(f)
		if !field.IsExported() {
			continue
		}

		if target, collection, isNav := navigationTarget(m, field.Type); isNav {
			et.navigations = append(et.navigations, &Navigation{
				name:       field.Name,
				fieldIndex: f,
				declaring:  et,
				target:     target,
				collection: collection,
			})
			continue
		}

		if field.Type.Kind() == reflect.Ptr && field.Type.Elem().Kind() == reflect.Struct &&
			field.Type.Elem() != reflect.TypeOf(time.Time{}) {
			return fmt.Errorf("field %s points at unregistered struct type %s", field.Name, field.Type.Elem())
		}

		p := &Property{
			name:       field.Name,
			column:     toSnake(field.Name),
			index:      ordinal,
			fieldIndex: f,
			goType:     field.Type,
			nullable:   cfg.nullable[field.Name] || field.Type.Kind() == reflect.Ptr,
		}
		if c, ok := cfg.comparers[field.Name]; ok {
			p.comparer = c
			p.customComparer = true
		} else {
			p.comparer = defaultComparerFor(field.Type)
		}
		p.concurrencyToken = cfg.tokens[field.Name]
		et.properties = append(et.properties, p)
		ordinal++
	}

	// Resolve the key.
	keyNames := cfg.key
	if len(keyNames) == 0 {
		if et.FindProperty("ID") != nil {
			keyNames = []string{"ID"}
		}
	}
	for _, k := range keyNames {
		p := et.FindProperty(k)
		if p == nil {
			return fmt.Errorf("key property %q not found", k)
		}
		et.key = append(et.key, p)
	}

	// Bind foreign keys to navigations.
	for navName, fkNames := range cfg.foreignKey {
		nav := et.FindNavigation(navName)
		if nav == nil {
			return fmt.Errorf("foreign key declared for unknown navigation %q", navName)
		}
		if nav.collection {
			return fmt.Errorf("foreign key declared on collection navigation %q", navName)
		}
		for _, fkName := range fkNames {
			fk := et.FindProperty(fkName)
			if fk == nil {
				return fmt.Errorf("foreign key property %q not found", fkName)
			}
			nav.foreignKeys = append(nav.foreignKeys, fk)
		}
	}

	return nil
}

// navigationTarget reports whether a struct field type is a navigation:
// a pointer to a registered entity type, or a slice of such pointers.
func navigationTarget(m *Model, t reflect.Type) (*EntityType, bool, bool) {
	if t.Kind() == reflect.Ptr {
		if et, ok := m.byGoType[t]; ok {
			return et, false, true
		}
	}
	if t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Ptr {
		if et, ok := m.byGoType[t.Elem()]; ok {
			return et, true, true
		}
	}
	return nil, false, false
}

func defaultComparerFor(t reflect.Type) Comparer {
	switch {
	case t == reflect.TypeOf([]byte(nil)):
		return BytesComparer{}
	case t == reflect.TypeOf(time.Time{}):
		return TimeComparer{}
	default:
		return DefaultComparer{}
	}
}

func computeSkipDetectChanges(m *Model) bool {
	for _, et := range m.types {
		if len(et.navigations) > 0 {
			return false
		}
		for _, p := range et.properties {
			if p.RequiresSnapshot() {
				return false
			}
		}
	}
	return true
}

// toSnake converts a Go field name to a snake_case column name.
// Runs of capitals collapse: "ID" -> "id", "CustomerID" -> "customer_id".
func toSnake(name string) string {
	var sb strings.Builder
	runes := []rune(name)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			prevLower := i > 0 && unicode.IsLower(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if i > 0 && (prevLower || nextLower) {
				sb.WriteByte('_')
			}
			sb.WriteRune(unicode.ToLower(r))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
