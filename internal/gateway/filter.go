package gateway

// Cond is one column predicate. Op is "eq" or "in"; for "in" Value is a
// []string or []any.
type Cond struct {
	Column string
	Op     string
	Value  any
}

// Eq builds an equality condition.
func Eq(column string, value any) Cond {
	return Cond{Column: column, Op: "eq", Value: value}
}

// In builds a membership condition.
func In(column string, values []string) Cond {
	return Cond{Column: column, Op: "in", Value: values}
}

// Filter selects rows. Conds are ANDed together; when Any is non-empty at
// least one of its groups (each group ANDed internally) must match as well.
type Filter struct {
	Conds []Cond
	Any   [][]Cond
}

// Where builds a filter from ANDed conditions.
func Where(conds ...Cond) Filter {
	return Filter{Conds: conds}
}

// Matches reports whether row satisfies the filter. Store implementations
// use it to decide which subscribers receive a change event.
func (f Filter) Matches(row Row) bool {
	for _, c := range f.Conds {
		if !c.matches(row) {
			return false
		}
	}
	if len(f.Any) == 0 {
		return true
	}
	for _, group := range f.Any {
		ok := true
		for _, c := range group {
			if !c.matches(row) {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

func (c Cond) matches(row Row) bool {
	got, present := row[c.Column]
	if !present {
		return false
	}
	switch c.Op {
	case "eq":
		return equalValue(got, c.Value)
	case "in":
		switch vals := c.Value.(type) {
		case []string:
			for _, v := range vals {
				if equalValue(got, v) {
					return true
				}
			}
		case []any:
			for _, v := range vals {
				if equalValue(got, v) {
					return true
				}
			}
		}
		return false
	default:
		return false
	}
}

// equalValue compares loosely across the integer widths that show up after a
// round trip through the store.
func equalValue(a, b any) bool {
	if ai, ok := asInt64(a); ok {
		if bi, ok := asInt64(b); ok {
			return ai == bi
		}
		return false
	}
	return a == b
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// Order is one ORDER BY term.
type Order struct {
	Column string
	Desc   bool
}
