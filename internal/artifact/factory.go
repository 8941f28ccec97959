package artifact

import (
	"context"
	"fmt"
)

// Options selects and configures a storage backend.
type Options struct {
	Driver Driver
	FSRoot string // directory root when Driver == DriverFilesystem
	S3     S3Config
}

// Open constructs the configured Store. An empty driver defaults to the
// filesystem backend.
func Open(ctx context.Context, opts Options) (Store, error) {
	driver := opts.Driver
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		return NewFS(opts.FSRoot)
	case DriverS3:
		return NewS3(ctx, opts.S3)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown artifact driver %q", driver)
	}
}
