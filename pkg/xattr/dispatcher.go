package xattr

import (
	"context"
	"fmt"
	"strings"

	"github.com/marmos91/dittoacl/pkg/acl"
	"github.com/marmos91/dittoacl/pkg/aclfs"
	"github.com/marmos91/dittoacl/pkg/metadata"
)

// Dispatcher routes attribute names to the handler whose prefix they carry.
type Dispatcher struct {
	handlers []*Handler
}

// NewDispatcher returns a dispatcher over handlers. Earlier handlers win
// when prefixes overlap.
func NewDispatcher(handlers ...*Handler) *Dispatcher {
	return &Dispatcher{handlers: handlers}
}

// NewACLDispatcher wires the access and default ACL handlers.
func NewACLDispatcher(m *aclfs.Manager, authz metadata.Authorizer) *Dispatcher {
	return NewDispatcher(NewAccessHandler(m, authz), NewDefaultHandler(m, authz))
}

// Handler finds the handler for an attribute name and returns it together
// with the remainder of the name after its prefix.
func (d *Dispatcher) Handler(name string) (*Handler, string, bool) {
	for _, h := range d.handlers {
		if suffix, ok := strings.CutPrefix(name, h.Prefix); ok {
			return h, suffix, true
		}
	}
	return nil, "", false
}

// Get reads an attribute. Names no handler claims yield acl.ErrUnsupported.
func (d *Dispatcher) Get(ctx context.Context, req Request, name string, buf []byte) (int, error) {
	h, suffix, ok := d.Handler(name)
	if !ok {
		return 0, fmt.Errorf("get %s: %w", name, acl.ErrUnsupported)
	}
	return h.Get(ctx, req, suffix, buf)
}

// Set writes an attribute. Names no handler claims yield acl.ErrUnsupported.
func (d *Dispatcher) Set(ctx context.Context, req Request, name string, value []byte) error {
	h, suffix, ok := d.Handler(name)
	if !ok {
		return fmt.Errorf("set %s: %w", name, acl.ErrUnsupported)
	}
	return h.Set(ctx, req, suffix, value)
}

// List concatenates the NUL-terminated names of every handler into buf and
// returns the total size. An empty buf is a size query; a non-empty buf that
// is too small yields acl.ErrRange.
func (d *Dispatcher) List(opts metadata.MountOptions, buf []byte) (int, error) {
	total := 0
	for _, h := range d.handlers {
		total += h.List(opts, nil)
	}
	if len(buf) == 0 {
		return total, nil
	}
	if len(buf) < total {
		return 0, fmt.Errorf("%w: need %d bytes, have %d", acl.ErrRange, total, len(buf))
	}

	off := 0
	for _, h := range d.handlers {
		off += h.List(opts, buf[off:])
	}
	return total, nil
}

// Names returns the attribute names List would report.
func (d *Dispatcher) Names(opts metadata.MountOptions) []string {
	var names []string
	for _, h := range d.handlers {
		if h.List(opts, nil) > 0 {
			names = append(names, h.Prefix)
		}
	}
	return names
}
