package backend

// Query is one element of a list request: a filter, an ordering, or a limit.
type Query interface {
	isQuery()
}

// Filter is a boolean condition over document attributes.
type Filter interface {
	Query
	isFilter()
}

// EqualFilter matches documents whose Field equals Value.
type EqualFilter struct {
	Field string
	Value any
}

// AndFilter matches documents satisfying all of Filters.
type AndFilter struct {
	Filters []Filter
}

// OrFilter matches documents satisfying any of Filters.
type OrFilter struct {
	Filters []Filter
}

// Order sorts results by Field.
type Order struct {
	Field string
	Desc  bool
}

// LimitQuery caps the number of results.
type LimitQuery struct {
	N int
}

func (EqualFilter) isQuery() {}
func (AndFilter) isQuery()   {}
func (OrFilter) isQuery()    {}
func (Order) isQuery()       {}
func (LimitQuery) isQuery()  {}

func (EqualFilter) isFilter() {}
func (AndFilter) isFilter()   {}
func (OrFilter) isFilter()    {}

// Equal matches field == value.
func Equal(field string, value any) Filter {
	return EqualFilter{Field: field, Value: value}
}

// And combines filters with logical and.
func And(filters ...Filter) Filter {
	return AndFilter{Filters: filters}
}

// Or combines filters with logical or.
func Or(filters ...Filter) Filter {
	return OrFilter{Filters: filters}
}

// OrderAsc sorts ascending by field.
func OrderAsc(field string) Query {
	return Order{Field: field}
}

// OrderDesc sorts descending by field.
func OrderDesc(field string) Query {
	return Order{Field: field, Desc: true}
}

// Limit caps the result count.
func Limit(n int) Query {
	return LimitQuery{N: n}
}
