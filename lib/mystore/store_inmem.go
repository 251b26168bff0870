package mystore

import (
	"context"
	"reflect"
	"sync"
)

type InMemoryStore[T any] struct {
	sync.Mutex
	Items map[string]T
}

func NewInMemoryStore[T any](c context.Context) (*InMemoryStore[T], func(), error) {
	return &InMemoryStore[T]{
		Items: make(map[string]T),
	}, func() {}, nil
}

func (s *InMemoryStore[T]) RunInTransaction(c context.Context, f func(c context.Context) error) error {
	// Start transaction
	s.Lock()

	ctx := context.WithValue(c, ctxTransactionKey{}, true)

	// Within this block everything is transactional
	err := f(ctx)
	if err != nil {
		// Rollback
		s.Unlock()

		return err
	}

	// Commit
	s.Unlock()

	return nil
}

func (s *InMemoryStore[T]) Put(c context.Context, uid string, value T) error {
	nonTransactional := c.Value(ctxTransactionKey{}) == nil

	if nonTransactional {
		s.Lock()
	}

	s.Items[uid] = value

	if nonTransactional {
		s.Unlock()
	}

	return nil
}

func (s *InMemoryStore[T]) Get(c context.Context, uid string) (T, bool, error) {
	nonTransactional := c.Value(ctxTransactionKey{}) == nil

	if nonTransactional {
		s.Lock()
	}

	result, exists := s.Items[uid]

	if nonTransactional {
		s.Unlock()
	}

	return result, exists, nil
}

func (s *InMemoryStore[T]) List(c context.Context) ([]T, error) {
	nonTransactional := c.Value(ctxTransactionKey{}) == nil

	if nonTransactional {
		s.Lock()
	}

	result := make([]T, 0, len(s.Items))
	for _, v := range s.Items {
		result = append(result, v)
	}

	if nonTransactional {
		s.Unlock()
	}

	return result, nil
}

// Query supports equality filters only. orderByField is ignored because
// the items live in a map.
func (s *InMemoryStore[T]) Query(c context.Context, filters []Filter, orderByField string) ([]T, error) {
	items, err := s.List(c)
	if err != nil {
		return nil, err
	}

	result := make([]T, 0, len(items))
	for _, item := range items {
		if matchesFilters(item, filters) {
			result = append(result, item)
		}
	}

	return result, nil
}

func matchesFilters(item any, filters []Filter) bool {
	v := reflect.Indirect(reflect.ValueOf(item))
	for _, filter := range filters {
		if filter.Compare != "=" {
			return false
		}
		field := v.FieldByName(filter.Field)
		if !field.IsValid() {
			return false
		}
		if !reflect.DeepEqual(field.Interface(), filter.Value) {
			return false
		}
	}

	return true
}
