package storage

import "errors"

// ErrUnsupportedType is returned by the factory for storage types it does
// not recognize.
var ErrUnsupportedType = errors.New("unsupported storage type")
