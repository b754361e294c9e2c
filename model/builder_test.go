package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type customer struct {
	ID     int64
	Name   string
	Orders []*order
}

type order struct {
	ID         int64
	CustomerID int64
	Total      float64
	Customer   *customer
}

type auditRecord struct {
	Seq     int64
	Payload string
}

func buildSalesModel(t *testing.T) *Model {
	t.Helper()
	b := NewBuilder()
	b.Entity(&customer{}, "customers")
	b.Entity(&order{}, "orders").ForeignKey("Customer", "CustomerID")
	m, err := b.Build()
	require.NoError(t, err)
	return m
}

func TestBuilder_DefaultKeyIsID(t *testing.T) {
	m := buildSalesModel(t)

	et := m.FindEntityType("customer")
	require.NotNil(t, et)
	require.True(t, et.HasKey())
	assert.Equal(t, "ID", et.Key()[0].Name())
}

func TestBuilder_ExplicitCompositeKey(t *testing.T) {
	type lineItem struct {
		OrderID int64
		LineNo  int
		SKU     string
	}
	b := NewBuilder()
	b.Entity(&lineItem{}, "line_items").Key("OrderID", "LineNo")
	m, err := b.Build()
	require.NoError(t, err)

	et := m.FindEntityType("lineItem")
	require.NotNil(t, et)
	require.Len(t, et.Key(), 2)
	assert.Equal(t, "OrderID", et.Key()[0].Name())
	assert.Equal(t, "LineNo", et.Key()[1].Name())
}

func TestBuilder_KeylessTypeHasNoKey(t *testing.T) {
	b := NewBuilder()
	b.Entity(&auditRecord{}, "audit_records")
	m, err := b.Build()
	require.NoError(t, err)

	et := m.FindEntityType("auditRecord")
	require.NotNil(t, et)
	assert.False(t, et.HasKey())
}

func TestBuilder_DiscoversNavigations(t *testing.T) {
	m := buildSalesModel(t)

	orders := m.FindEntityType("order")
	require.NotNil(t, orders)
	nav := orders.FindNavigation("Customer")
	require.NotNil(t, nav)
	assert.False(t, nav.IsCollection())
	assert.Equal(t, "customer", nav.TargetType().Name())
	require.Len(t, nav.ForeignKeys(), 1)
	assert.Equal(t, "CustomerID", nav.ForeignKeys()[0].Name())
	assert.True(t, nav.Required())

	customers := m.FindEntityType("customer")
	coll := customers.FindNavigation("Orders")
	require.NotNil(t, coll)
	assert.True(t, coll.IsCollection())
	assert.Equal(t, "order", coll.TargetType().Name())
}

func TestBuilder_NavigationFieldsAreNotProperties(t *testing.T) {
	m := buildSalesModel(t)

	orders := m.FindEntityType("order")
	assert.Nil(t, orders.FindProperty("Customer"))
	require.NotNil(t, orders.FindProperty("Total"))
	assert.Equal(t, "total", orders.FindProperty("Total").Column())
}

func TestBuilder_NullableForeignKeyMakesNavigationOptional(t *testing.T) {
	b := NewBuilder()
	b.Entity(&customer{}, "customers")
	b.Entity(&order{}, "orders").
		Nullable("CustomerID").
		ForeignKey("Customer", "CustomerID")
	m, err := b.Build()
	require.NoError(t, err)

	nav := m.FindEntityType("order").FindNavigation("Customer")
	require.NotNil(t, nav)
	assert.False(t, nav.Required())
}

func TestBuilder_RejectsNonPointerSample(t *testing.T) {
	b := NewBuilder()
	b.Entity(customer{}, "customers")
	_, err := b.Build()
	assert.Error(t, err)
}

func TestBuilder_RejectsUnregisteredStructPointer(t *testing.T) {
	type address struct{ City string }
	type person struct {
		ID   int64
		Home *address
	}
	b := NewBuilder()
	b.Entity(&person{}, "people")
	_, err := b.Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unregistered struct type")
}

func TestBuilder_RejectsUnknownKeyProperty(t *testing.T) {
	b := NewBuilder()
	b.Entity(&auditRecord{}, "audit_records").Key("Missing")
	_, err := b.Build()
	assert.Error(t, err)
}

func TestBuilder_RejectsForeignKeyOnCollection(t *testing.T) {
	b := NewBuilder()
	b.Entity(&customer{}, "customers").ForeignKey("Orders", "ID")
	b.Entity(&order{}, "orders")
	_, err := b.Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "collection navigation")
}

func TestBuilder_RejectsDuplicateRegistration(t *testing.T) {
	b := NewBuilder()
	b.Entity(&customer{}, "customers")
	b.Entity(&customer{}, "customers_again")
	_, err := b.Build()
	assert.Error(t, err)
}

func TestModel_EntityTypeOf(t *testing.T) {
	m := buildSalesModel(t)

	et, err := m.EntityTypeOf(&order{})
	require.NoError(t, err)
	assert.Equal(t, "order", et.Name())

	_, err = m.EntityTypeOf(&auditRecord{})
	assert.Error(t, err)
}

func TestModel_SkipDetectChanges(t *testing.T) {
	t.Run("scalar-only model skips", func(t *testing.T) {
		b := NewBuilder()
		b.Entity(&auditRecord{}, "audit_records").Key("Seq")
		m, err := b.Build()
		require.NoError(t, err)
		assert.True(t, m.SkipDetectChanges())
	})

	t.Run("navigations force detection", func(t *testing.T) {
		m := buildSalesModel(t)
		assert.False(t, m.SkipDetectChanges())
	})

	t.Run("concurrency token forces detection", func(t *testing.T) {
		b := NewBuilder()
		b.Entity(&auditRecord{}, "audit_records").
			Key("Seq").
			ConcurrencyToken("Payload")
		m, err := b.Build()
		require.NoError(t, err)
		assert.False(t, m.SkipDetectChanges())
	})
}

func TestProperty_GetSet(t *testing.T) {
	m := buildSalesModel(t)
	total := m.FindEntityType("order").FindProperty("Total")
	require.NotNil(t, total)

	o := &order{Total: 12.5}
	assert.Equal(t, 12.5, total.Get(o))

	total.Set(o, 99.0)
	assert.Equal(t, 99.0, o.Total)

	total.Set(o, nil)
	assert.Equal(t, 0.0, o.Total)
}

func TestProperty_RequiresSnapshot(t *testing.T) {
	type blob struct {
		ID       int64
		Data     []byte
		Tags     map[string]string
		Count    int
		Name     string
		Deadline time.Time
	}
	b := NewBuilder()
	b.Entity(&blob{}, "blobs")
	m, err := b.Build()
	require.NoError(t, err)

	et := m.FindEntityType("blob")
	assert.True(t, et.FindProperty("Data").RequiresSnapshot())
	assert.True(t, et.FindProperty("Tags").RequiresSnapshot())
	assert.False(t, et.FindProperty("Count").RequiresSnapshot())
	assert.False(t, et.FindProperty("Name").RequiresSnapshot())
	assert.False(t, et.FindProperty("Deadline").RequiresSnapshot())
}

func TestNavigation_GetAllAndSetReference(t *testing.T) {
	m := buildSalesModel(t)
	orders := m.FindEntityType("order")
	nav := orders.FindNavigation("Customer")
	require.NotNil(t, nav)

	o := &order{}
	assert.Nil(t, nav.Get(o))
	assert.Empty(t, nav.GetAll(o))

	c := &customer{ID: 7}
	nav.SetReference(o, c)
	assert.Same(t, c, o.Customer)
	assert.Equal(t, []any{any(c)}, nav.GetAll(o))

	nav.SetReference(o, nil)
	assert.Nil(t, o.Customer)

	coll := m.FindEntityType("customer").FindNavigation("Orders")
	c.Orders = []*order{o, nil, {ID: 2}}
	all := coll.GetAll(c)
	assert.Len(t, all, 2)
}

func TestToSnake(t *testing.T) {
	cases := map[string]string{
		"ID":         "id",
		"Name":       "name",
		"CustomerID": "customer_id",
		"HTTPStatus": "http_status",
		"OrderLine":  "order_line",
	}
	for in, want := range cases {
		assert.Equal(t, want, toSnake(in), "toSnake(%q)", in)
	}
}
