// Package container provides a typed service registry with singleton and
// transient lifetimes. Services are keyed by their Go type; registration
// happens once at startup and resolution is safe for concurrent use after
// that.
package container

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
)

// Lifetime controls how often a service factory runs.
type Lifetime int

const (
	// Singleton services are created on first resolution and memoised for
	// the lifetime of the container.
	Singleton Lifetime = iota

	// Transient services are created on every resolution.
	Transient
)

// ErrServiceUnavailable is returned when a requested service type is not
// registered or its factory produced nothing.
var ErrServiceUnavailable = errors.New("service unavailable")

type descriptor struct {
	lifetime Lifetime
	factory  func(*Container) (interface{}, error)

	once     sync.Once
	instance interface{}
	err      error
}

// Container holds service descriptors keyed by type.
type Container struct {
	mu          sync.RWMutex
	descriptors map[reflect.Type]*descriptor
}

// New creates an empty container.
func New() *Container {
	return &Container{descriptors: make(map[reflect.Type]*descriptor)}
}

// Register binds a factory for type T with the given lifetime. Re-registering
// the same type replaces the prior descriptor, including any memoised
// singleton. Factories must not resolve their own type from the container.
func Register[T any](c *Container, factory func(*Container) (T, error), lifetime Lifetime) {
	key := typeOf[T]()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.descriptors[key] = &descriptor{
		lifetime: lifetime,
		factory: func(c *Container) (interface{}, error) {
			return factory(c)
		},
	}
}

// RegisterInstance binds an existing value as a singleton for type T.
func RegisterInstance[T any](c *Container, instance T) {
	Register(c, func(*Container) (T, error) { return instance, nil }, Singleton)
}

// Resolve returns the service registered for type T, invoking the factory
// according to its lifetime.
func Resolve[T any](c *Container) (T, error) {
	var zero T
	key := typeOf[T]()

	c.mu.RLock()
	desc, ok := c.descriptors[key]
	c.mu.RUnlock()
	if !ok {
		return zero, fmt.Errorf("%w: %s is not registered", ErrServiceUnavailable, key)
	}

	var (
		instance interface{}
		err      error
	)
	switch desc.lifetime {
	case Singleton:
		desc.once.Do(func() {
			desc.instance, desc.err = desc.factory(c)
		})
		instance, err = desc.instance, desc.err
	default:
		instance, err = desc.factory(c)
	}
	if err != nil {
		return zero, fmt.Errorf("create %s: %w", key, err)
	}
	if instance == nil {
		return zero, fmt.Errorf("%w: factory for %s returned nil", ErrServiceUnavailable, key)
	}

	typed, ok := instance.(T)
	if !ok {
		return zero, fmt.Errorf("%w: factory for %s produced %T", ErrServiceUnavailable, key, instance)
	}
	return typed, nil
}

// Registered reports whether type T has a descriptor.
func Registered[T any](c *Container) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.descriptors[typeOf[T]()]
	return ok
}

// typeOf returns the reflect.Type of T, resolving interface types to their
// interface identity rather than a nil concrete type.
func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}
