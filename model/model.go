// Package model defines the finalized, immutable metadata consumed by the
// tracking and migration runtimes: entity types, properties, keys,
// navigations, and store mappings. The full conventions-based model
// building surface is an external collaborator; Builder in this package
// is the minimal input surface needed to construct a Model.
package model

import (
	"reflect"
	"time"

	"github.com/relforge/relforge"
)

// Model is the finalized set of entity types. It is immutable after
// Build and safe for concurrent readers.
type Model struct {
	types    []*EntityType
	byName   map[string]*EntityType
	byGoType map[reflect.Type]*EntityType

	skipDetectChanges bool
}

// EntityTypes returns the entity types in registration order.
func (m *Model) EntityTypes() []*EntityType {
	return m.types
}

// FindEntityType returns the entity type with the given name, or nil.
func (m *Model) FindEntityType(name string) *EntityType {
	return m.byName[name]
}

// EntityTypeOf resolves the entity type for an entity instance.
// The instance must be a pointer to a registered struct type.
// Returns relforge.ErrEntityTypeNotFound for unregistered types.
func (m *Model) EntityTypeOf(entity any) (*EntityType, error) {
	t := reflect.TypeOf(entity)
	et, ok := m.byGoType[t]
	if !ok {
		return nil, relforge.ErrEntityTypeNotFound
	}
	return et, nil
}

// SkipDetectChanges reports whether snapshot-based change detection can
// be skipped for this model: no property requires snapshot comparison
// and no entity type declares navigations.
func (m *Model) SkipDetectChanges() bool {
	return m.skipDetectChanges
}

// EntityType describes one mapped entity type.
type EntityType struct {
	name   string
	table  string
	goType reflect.Type // pointer-to-struct type of instances

	properties  []*Property
	key         []*Property
	navigations []*Navigation
}

// Name returns the entity type name.
func (t *EntityType) Name() string { return t.name }

// Table returns the mapped table name.
func (t *EntityType) Table() string { return t.table }

// Properties returns the scalar properties in field order.
func (t *EntityType) Properties() []*Property { return t.properties }

// Key returns the key properties, empty for keyless types.
func (t *EntityType) Key() []*Property { return t.key }

// HasKey reports whether the type declares a key.
func (t *EntityType) HasKey() bool { return len(t.key) > 0 }

// Navigations returns the navigation properties in field order.
func (t *EntityType) Navigations() []*Navigation { return t.navigations }

// FindProperty returns the scalar property with the given name, or nil.
func (t *EntityType) FindProperty(name string) *Property {
	for _, p := range t.properties {
		if p.name == name {
			return p
		}
	}
	return nil
}

// FindNavigation returns the navigation with the given name, or nil.
func (t *EntityType) FindNavigation(name string) *Navigation {
	for _, n := range t.navigations {
		if n.name == name {
			return n
		}
	}
	return nil
}

// Property describes one scalar property of an entity type.
type Property struct {
	name             string
	column           string
	index            int // ordinal in the entry value vectors
	fieldIndex       int // struct field index
	goType           reflect.Type
	nullable         bool
	concurrencyToken bool
	comparer         Comparer
	customComparer   bool
}

// Name returns the property name.
func (p *Property) Name() string { return p.name }

// Column returns the mapped column name.
func (p *Property) Column() string { return p.column }

// Index returns the property's ordinal in the entry value vectors.
func (p *Property) Index() int { return p.index }

// Nullable reports whether the mapped column permits NULL.
func (p *Property) Nullable() bool { return p.nullable }

// ConcurrencyToken reports whether the property participates in
// optimistic-concurrency predicates and therefore always snapshots.
func (p *Property) ConcurrencyToken() bool { return p.concurrencyToken }

// Comparer returns the value-equality comparer for the property.
func (p *Property) Comparer() Comparer { return p.comparer }

// Get reads the property value from an entity instance.
func (p *Property) Get(entity any) any {
	return reflect.ValueOf(entity).Elem().Field(p.fieldIndex).Interface()
}

// Set writes the property value on an entity instance.
func (p *Property) Set(entity any, value any) {
	field := reflect.ValueOf(entity).Elem().Field(p.fieldIndex)
	if value == nil {
		field.Set(reflect.Zero(field.Type()))
		return
	}
	field.Set(reflect.ValueOf(value))
}

// RequiresSnapshot reports whether change detection needs an original
// value for this property: mutable kinds, custom comparers, and
// concurrency tokens all require one.
func (p *Property) RequiresSnapshot() bool {
	if p.concurrencyToken || p.customComparer {
		return true
	}
	return mutableKind(p.goType)
}

func mutableKind(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Slice, reflect.Map, reflect.Ptr, reflect.Interface:
		return true
	case reflect.Struct:
		return t != reflect.TypeOf(time.Time{})
	default:
		return false
	}
}

// Navigation describes a relationship-bearing property: either a
// reference from a dependent to its principal, or a collection on the
// principal side.
type Navigation struct {
	name       string
	fieldIndex int
	declaring  *EntityType
	target     *EntityType
	collection bool

	// foreignKeys are the dependent-side properties that mirror the
	// principal key. Only set on reference navigations.
	foreignKeys []*Property
}

// Name returns the navigation name.
func (n *Navigation) Name() string { return n.name }

// DeclaringType returns the entity type the navigation is declared on.
func (n *Navigation) DeclaringType() *EntityType { return n.declaring }

// TargetType returns the entity type the navigation points at.
func (n *Navigation) TargetType() *EntityType { return n.target }

// IsCollection reports whether the navigation holds many targets.
func (n *Navigation) IsCollection() bool { return n.collection }

// ForeignKeys returns the dependent-side foreign key properties of a
// reference navigation, nil for collections.
func (n *Navigation) ForeignKeys() []*Property { return n.foreignKeys }

// Required reports whether the relationship is required: every foreign
// key property is non-nullable. Severing a required reference orphans
// the dependent.
func (n *Navigation) Required() bool {
	if n.collection || len(n.foreignKeys) == 0 {
		return false
	}
	for _, fk := range n.foreignKeys {
		if fk.nullable {
			return false
		}
	}
	return true
}

// Get reads the navigation value from an entity instance. Reference
// navigations return a single entity or nil; collections return the
// slice value.
func (n *Navigation) Get(entity any) any {
	field := reflect.ValueOf(entity).Elem().Field(n.fieldIndex)
	if field.IsNil() {
		return nil
	}
	return field.Interface()
}

// GetAll reads the reachable entities of the navigation: one element
// for a set reference, every non-nil element for a collection.
func (n *Navigation) GetAll(entity any) []any {
	field := reflect.ValueOf(entity).Elem().Field(n.fieldIndex)
	if field.IsNil() {
		return nil
	}
	if !n.collection {
		return []any{field.Interface()}
	}
	out := make([]any, 0, field.Len())
	for i := 0; i < field.Len(); i++ {
		elem := field.Index(i)
		if !elem.IsNil() {
			out = append(out, elem.Interface())
		}
	}
	return out
}

// SetReference writes a reference navigation on an entity instance.
// Passing nil severs the reference.
func (n *Navigation) SetReference(entity any, target any) {
	field := reflect.ValueOf(entity).Elem().Field(n.fieldIndex)
	if target == nil {
		field.Set(reflect.Zero(field.Type()))
		return
	}
	field.Set(reflect.ValueOf(target))
}
