package cleanup

import "context"

type contextKey struct{}

// WithRegistry returns a copy of ctx carrying r.
func WithRegistry(ctx context.Context, r *Registry) context.Context {
	return context.WithValue(ctx, contextKey{}, r)
}

// FromContext returns the registry carried by ctx.
func FromContext(ctx context.Context) (*Registry, bool) {
	if ctx == nil {
		return nil, false
	}
	r, ok := ctx.Value(contextKey{}).(*Registry)
	return r, ok && r != nil
}

// Register adds fn under key to the registry carried by ctx.
func Register(ctx context.Context, key string, fn Func) error {
	if key == "" {
		return ErrEmptyKey
	}
	if fn == nil {
		return ErrNilCallback
	}
	r, ok := FromContext(ctx)
	if !ok {
		return ErrNoRegistry
	}
	r.Add(key, fn)
	return nil
}
