// internal/types/interfaces.go
package types

import "context"

// KeyValueStore is the string-valued persistence substrate. A missing key is
// reported with ok == false and is distinct from an empty value.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}
