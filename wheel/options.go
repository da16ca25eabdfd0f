package wheel

import "github.com/c2h5oh/datasize"

// DefaultSize is used when a Config is built with no WithSize option.
const DefaultSize = 4 * datasize.MB

// Config describes how to size a wheel's shared region. It only governs
// construction; sizing policy for the region itself (hugepages, where it
// lives, how it is grown) is out of scope, same as spec.md section 1.
type Config struct {
	// Size is the total region size, header quantum included.
	Size datasize.ByteSize
}

// Option configures a Config.
type Option func(*Config)

// WithSize sets the total region size.
func WithSize(size datasize.ByteSize) Option {
	return func(c *Config) { c.Size = size }
}

// NewConfig builds a Config from options, defaulting Size to DefaultSize.
func NewConfig(opts ...Option) Config {
	c := Config{Size: DefaultSize}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Validate checks the config's Size against ValidateSize.
func (c Config) Validate() error {
	return ValidateSize(uint64(c.Size.Bytes()))
}
