package naming

import (
	"errors"
	"fmt"
)

// ErrNamingCollision is matched by every *NamingCollisionError.
var ErrNamingCollision = errors.New("naming collision")

// NamingCollisionError indicates two different contents resolved to the same final path.
type NamingCollisionError struct {
	Path         string
	ExistingHash string
	Hash         string
}

func (e *NamingCollisionError) Error() string {
	return fmt.Sprintf("naming collision at %s: content %s conflicts with %s", e.Path, e.Hash, e.ExistingHash)
}

func (e *NamingCollisionError) Is(target error) bool {
	return target == ErrNamingCollision
}
