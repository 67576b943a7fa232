package scoring

import "sync"

type onceEntry[V any] struct {
	once sync.Once
	val  V
	err  error
}

// onceMap computes each key at most once and is safe for concurrent use.
type onceMap[K comparable, V any] struct {
	mu sync.Mutex
	m  map[K]*onceEntry[V]
}

func (o *onceMap[K, V]) get(k K, load func() (V, error)) (V, error) {
	o.mu.Lock()
	if o.m == nil {
		o.m = map[K]*onceEntry[V]{}
	}
	e, ok := o.m[k]
	if !ok {
		e = &onceEntry[V]{}
		o.m[k] = e
	}
	o.mu.Unlock()
	e.once.Do(func() { e.val, e.err = load() })
	return e.val, e.err
}
