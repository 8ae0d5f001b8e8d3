package financing_test

import (
	"context"
	"errors"
	"sync"

	"github.com/noah-isme/financing-gateway/internal/order"
)

var errTransient = errors.New("transient store failure")

// memStore is an in-memory order.Store with the same lookup semantics as the
// SQL-backed store: FindByUsage resolves to exactly one order or reports
// ErrNotFound.
type memStore struct {
	mu     sync.Mutex
	orders map[string]order.Order

	saveErr  error
	applyErr error
	findErr  error
}

func newMemStore(orders ...order.Order) *memStore {
	s := &memStore{orders: make(map[string]order.Order, len(orders))}
	for _, ord := range orders {
		if ord.Meta == nil {
			ord.Meta = map[string]string{}
		}
		s.orders[ord.ID] = ord
	}
	return s
}

func (s *memStore) Get(_ context.Context, id string) (order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ord, ok := s.orders[id]
	if !ok {
		return order.Order{}, order.ErrNotFound
	}
	return cloneOrder(ord), nil
}

func (s *memStore) FindByUsage(_ context.Context, usage string) (order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return order.Order{}, s.findErr
	}
	var matches []order.Order
	for _, ord := range s.orders {
		if usage != "" && ord.Meta[order.MetaUsage] == usage {
			matches = append(matches, ord)
		}
	}
	if len(matches) != 1 {
		return order.Order{}, order.ErrNotFound
	}
	return cloneOrder(matches[0]), nil
}

func (s *memStore) SaveFinancingRef(_ context.Context, id, encodedURL, usage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	ord, ok := s.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	ord.Meta[order.MetaRegisterURL] = encodedURL
	ord.Meta[order.MetaUsage] = usage
	s.orders[id] = ord
	return nil
}

func (s *memStore) UpdateStatus(_ context.Context, id, status, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ord, ok := s.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	ord.Status = status
	s.orders[id] = ord
	return nil
}

func (s *memStore) ApplyOutcome(_ context.Context, id, status, _ string, paymentRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.applyErr != nil {
		return s.applyErr
	}
	ord, ok := s.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	ord.Status = status
	if paymentRef != "" {
		ord.PaymentRef = paymentRef
	}
	delete(ord.Meta, order.MetaRegisterURL)
	delete(ord.Meta, order.MetaUsage)
	s.orders[id] = ord
	return nil
}

func (s *memStore) snapshot(id string) order.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneOrder(s.orders[id])
}

func cloneOrder(ord order.Order) order.Order {
	meta := make(map[string]string, len(ord.Meta))
	for k, v := range ord.Meta {
		meta[k] = v
	}
	ord.Meta = meta
	return ord
}
