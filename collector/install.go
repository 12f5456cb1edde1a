package collector

import (
	"net/http"
	"slices"
	"sync"

	"github.com/samber/lo"

	"github.com/networkteam/netinspector/xhr"
)

// sinkSource provides the interceptors a call is recorded for
type sinkSource interface {
	sinks() []*Interceptor
}

type sinkFunc func() []*Interceptor

func (f sinkFunc) sinks() []*Interceptor { return f() }

// dispatcher fans calls on one surface out to the registered interceptors
type dispatcher struct {
	interceptors []*Interceptor

	mu sync.RWMutex
}

func (d *dispatcher) register(i *Interceptor) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !lo.Contains(d.interceptors, i) {
		d.interceptors = append(d.interceptors, i)
	}
}

// unregister removes i and returns the number of interceptors left
func (d *dispatcher) unregister(i *Interceptor) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.interceptors = lo.Without(d.interceptors, i)
	return len(d.interceptors)
}

func (d *dispatcher) sinks() []*Interceptor {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.interceptors)
}

// transportHook owns a replaced round tripper slot
type transportHook struct {
	dispatcher
	slot     *http.RoundTripper
	original http.RoundTripper
}

// xhrHook owns a replaced prototype method table
type xhrHook struct {
	dispatcher
	proto    *xhr.Prototype
	original xhr.Methods
}

// hooks tracks every replaced surface, so a surface is wrapped at most once
var hooks = struct {
	transports map[*http.RoundTripper]*transportHook
	prototypes map[*xhr.Prototype]*xhrHook

	mu sync.Mutex
}{
	transports: make(map[*http.RoundTripper]*transportHook),
	prototypes: make(map[*xhr.Prototype]*xhrHook),
}

func attachTransport(slot *http.RoundTripper, i *Interceptor) *transportHook {
	hooks.mu.Lock()
	defer hooks.mu.Unlock()

	h := hooks.transports[slot]
	if h == nil {
		h = &transportHook{slot: slot, original: *slot}
		next := h.original
		if next == nil {
			next = &http.Transport{}
		}
		*slot = &observedTransport{next: next, source: h}
		hooks.transports[slot] = h
	}
	h.register(i)
	return h
}

func detachTransport(h *transportHook, i *Interceptor) {
	hooks.mu.Lock()
	defer hooks.mu.Unlock()

	if h.unregister(i) > 0 {
		return
	}
	*h.slot = h.original
	delete(hooks.transports, h.slot)
}

func attachPrototype(proto *xhr.Prototype, i *Interceptor) *xhrHook {
	hooks.mu.Lock()
	defer hooks.mu.Unlock()

	h := hooks.prototypes[proto]
	if h == nil {
		h = &xhrHook{proto: proto, original: proto.Methods()}
		proto.SetMethods(xhr.Methods{Open: h.open, Send: h.send})
		hooks.prototypes[proto] = h
	}
	h.register(i)
	return h
}

func detachPrototype(h *xhrHook, i *Interceptor) {
	hooks.mu.Lock()
	defer hooks.mu.Unlock()

	if h.unregister(i) > 0 {
		return
	}
	h.proto.SetMethods(h.original)
	delete(hooks.prototypes, h.proto)
}
