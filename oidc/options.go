package oidc

import "time"

// Option defines a common functional options type
type Option func(interface{})

// ApplyOpts takes a pointer to the options struct as a set of default options
// and applies the slice of opts as overrides.
func ApplyOpts(opts interface{}, opt ...Option) {
	for _, o := range opt {
		o(opts)
	}
}

// WithNow provides an optional time source, used by the memory session
// store and the authenticator when checking expirations.  Primarily a test
// hook.
func WithNow(now func() time.Time) Option {
	return func(o interface{}) {
		if now == nil {
			return
		}
		switch v := o.(type) {
		case *memoryStoreOptions:
			v.withNowFunc = now
		case *authenticatorOptions:
			v.withNowFunc = now
		}
	}
}
