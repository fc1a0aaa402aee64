// Package eventbus dispatches application events to subscribers by
// reflecting over handler signatures. Publishing is synchronous: every
// matching handler runs on the publisher's goroutine before Publish
// returns.
package eventbus

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/sirupsen/logrus"
)

type EventBus interface {
	Publish(args ...interface{})
	Subscribe(handler interface{})
	Unsubscribe(handler interface{})
	Clear()
	SubscribersCount() int
}

// EventBusWithError extends EventBus for callers that need delivery
// results instead of fire-and-forget.
type EventBusWithError interface {
	EventBus
	PublishE(args ...any) error
}

var (
	ErrNoSubscribers        = errors.New("eventbus: no matching subscribers")
	ErrInvalidHandlerReturn = errors.New("eventbus: invalid handler return signature")
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

type bus struct {
	log *logrus.Logger

	mu       sync.RWMutex
	handlers []reflect.Value
}

// NewEventPublisher returns a bus that logs delivery problems to log.
// A nil logger silences them.
func NewEventPublisher(log *logrus.Logger) EventBus {
	return &bus{log: log}
}

// MatchSignature reports whether handler is a func whose parameters
// accept args positionally. Interface parameters match any implementing
// argument; nil arguments match pointer and interface parameters only.
func MatchSignature(handler interface{}, args []interface{}) bool {
	t := reflect.TypeOf(handler)
	if t == nil || t.Kind() != reflect.Func {
		return false
	}
	return matchType(t, args)
}

func matchType(t reflect.Type, args []interface{}) bool {
	if t.NumIn() != len(args) {
		return false
	}
	for i, arg := range args {
		param := t.In(i)
		if arg == nil {
			if param.Kind() != reflect.Interface && param.Kind() != reflect.Ptr {
				return false
			}
			continue
		}
		at := reflect.TypeOf(arg)
		if param.Kind() == reflect.Interface {
			if !at.Implements(param) {
				return false
			}
			continue
		}
		if !at.AssignableTo(param) {
			return false
		}
	}
	return true
}

func (b *bus) matching(args []interface{}) []reflect.Value {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]reflect.Value, 0, len(b.handlers))
	for _, h := range b.handlers {
		if matchType(h.Type(), args) {
			out = append(out, h)
		}
	}
	return out
}

func reflectArgs(args []interface{}) []reflect.Value {
	in := make([]reflect.Value, len(args))
	for i, arg := range args {
		in[i] = reflect.ValueOf(arg)
	}
	return in
}

// call invokes h and converts a panic into an error instead of
// unwinding the publisher.
func call(h reflect.Value, in []reflect.Value, args []interface{}) (out []reflect.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("eventbus: handler %s panicked with args %v: %v", h.Type(), args, r)
		}
	}()
	return h.Call(in), nil
}

// Publish delivers args to every handler with a matching signature. A
// panicking handler is logged and skipped without stopping delivery to
// the rest.
func (b *bus) Publish(args ...interface{}) {
	in := reflectArgs(args)

	delivered := false
	for _, h := range b.matching(args) {
		if _, err := call(h, in, args); err != nil {
			if b.log != nil {
				b.log.Error(err.Error())
			}
			continue
		}
		delivered = true
	}
	if !delivered && b.log != nil {
		b.log.Warnf("eventbus.Publish: no matching subscribers for event with args: %v", args)
	}
}

// PublishE delivers args like Publish but collects handler errors.
// Handlers may return nothing or a single error; any other return
// signature is reported as ErrInvalidHandlerReturn.
func (b *bus) PublishE(args ...any) error {
	in := reflectArgs(args)
	matched := b.matching(args)
	if len(matched) == 0 {
		return ErrNoSubscribers
	}

	var errs []error
	for _, h := range matched {
		out, err := call(h, in, args)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		switch {
		case len(out) == 0:
		case len(out) > 1:
			errs = append(errs, fmt.Errorf("%w: handler %s returned %d values", ErrInvalidHandlerReturn, h.Type(), len(out)))
		case out[0].Type() != errorType:
			errs = append(errs, fmt.Errorf("%w: handler %s return type is %s", ErrInvalidHandlerReturn, h.Type(), out[0].Type()))
		case !out[0].IsNil():
			errs = append(errs, out[0].Interface().(error))
		}
	}
	return errors.Join(errs...)
}

func (b *bus) Subscribe(handler interface{}) {
	v := reflect.ValueOf(handler)
	if v.Kind() != reflect.Func {
		panic("handler must be a function")
	}
	b.mu.Lock()
	b.handlers = append(b.handlers, v)
	b.mu.Unlock()
}

// Unsubscribe removes the first handler sharing the given function's
// code pointer. Distinct closures over the same body are not told
// apart.
func (b *bus) Unsubscribe(handler interface{}) {
	v := reflect.ValueOf(handler)
	if v.Kind() != reflect.Func {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, h := range b.handlers {
		if h.Pointer() == v.Pointer() {
			b.handlers = append(b.handlers[:i], b.handlers[i+1:]...)
			return
		}
	}
}

func (b *bus) Clear() {
	b.mu.Lock()
	b.handlers = nil
	b.mu.Unlock()
}

func (b *bus) SubscribersCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}
