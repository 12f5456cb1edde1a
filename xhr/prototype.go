package xhr

import "sync/atomic"

// OpenFunc implements Request.Open
type OpenFunc func(r *Request, method, url string, opts ...OpenOption) error

// SendFunc implements Request.Send
type SendFunc func(r *Request, body []byte) error

// Methods is the method table a Request dispatches Open and Send through.
type Methods struct {
	Open OpenFunc
	Send SendFunc
}

// NativeMethods returns the built-in method table
func NativeMethods() Methods {
	return Methods{
		Open: NativeOpen,
		Send: NativeSend,
	}
}

// Prototype holds a method table shared by all requests created against it.
// Replacing the table affects every request, including ones already created.
type Prototype struct {
	methods atomic.Pointer[Methods]
}

// Default is the prototype used by New
var Default = NewPrototype(NativeMethods())

// NewPrototype creates a prototype with the given method table.
// Missing methods fall back to the native implementations.
func NewPrototype(m Methods) *Prototype {
	p := &Prototype{}
	p.SetMethods(m)
	return p
}

// Methods returns the current method table
func (p *Prototype) Methods() Methods {
	return *p.methods.Load()
}

// SetMethods replaces the method table and returns the previous one.
func (p *Prototype) SetMethods(m Methods) (previous Methods) {
	if m.Open == nil {
		m.Open = NativeOpen
	}
	if m.Send == nil {
		m.Send = NativeSend
	}
	if old := p.methods.Swap(&m); old != nil {
		previous = *old
	}
	return previous
}
