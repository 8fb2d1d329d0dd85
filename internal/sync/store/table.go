package store

// Table is an immutable id-keyed set of records. Every write produces a new
// Table; records a write did not touch keep their pointers, so readers can
// compare pointers to find out what changed.
type Table[T any] struct {
	rows map[string]*T
}

func newTable[T any](n int) *Table[T] {
	return &Table[T]{rows: make(map[string]*T, n)}
}

func (t *Table[T]) Get(id string) (*T, bool) {
	if t == nil {
		return nil, false
	}
	r, ok := t.rows[id]
	return r, ok
}

func (t *Table[T]) Has(id string) bool {
	_, ok := t.Get(id)
	return ok
}

func (t *Table[T]) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rows)
}

// Values returns the records in no particular order.
func (t *Table[T]) Values() []*T {
	if t == nil {
		return nil
	}
	out := make([]*T, 0, len(t.rows))
	for _, r := range t.rows {
		out = append(out, r)
	}
	return out
}

func (t *Table[T]) with(id string, r *T) *Table[T] {
	e := t.edit()
	e.put(id, r)
	return e.done()
}

func (t *Table[T]) edit() *tableEdit[T] { return &tableEdit[T]{base: t} }

// tableEdit batches writes and copies the underlying map at most once.
type tableEdit[T any] struct {
	base *Table[T]
	rows map[string]*T
}

func (e *tableEdit[T]) get(id string) (*T, bool) {
	if e.rows != nil {
		r, ok := e.rows[id]
		return r, ok
	}
	return e.base.Get(id)
}

func (e *tableEdit[T]) ensure() {
	if e.rows != nil {
		return
	}
	n := e.base.Len()
	e.rows = make(map[string]*T, n+1)
	if e.base != nil {
		for k, v := range e.base.rows {
			e.rows[k] = v
		}
	}
}

func (e *tableEdit[T]) put(id string, r *T) {
	e.ensure()
	e.rows[id] = r
}

func (e *tableEdit[T]) del(id string) {
	if _, ok := e.get(id); !ok {
		return
	}
	e.ensure()
	delete(e.rows, id)
}

func (e *tableEdit[T]) done() *Table[T] {
	if e.rows == nil {
		return e.base
	}
	return &Table[T]{rows: e.rows}
}
