package common

import (
	"fmt"

	"github.com/pkg/errors"
)

// StoreErrType enumerates the failures a chain store reports.
type StoreErrType uint32

const (
	// KeyNotFound means the requested item is not in the store.
	KeyNotFound StoreErrType = iota
	// Empty means the store holds no head yet.
	Empty
	// KeyAlreadyExists means an insert would overwrite an existing item.
	KeyAlreadyExists
	// UnknownParent means a block does not extend a known block.
	UnknownParent
	// Closed means the store was used after Close.
	Closed
)

// StoreErr is returned by chain stores. It records the type of data being
// accessed and the key.
type StoreErr struct {
	dataType string
	errType  StoreErrType
	key      string
}

// NewStoreErr creates a StoreErr.
func NewStoreErr(dataType string, errType StoreErrType, key string) StoreErr {
	return StoreErr{
		dataType: dataType,
		errType:  errType,
		key:      key,
	}
}

// Error implements the error interface.
func (e StoreErr) Error() string {
	m := ""
	switch e.errType {
	case KeyNotFound:
		m = "Not Found"
	case Empty:
		m = "Empty"
	case KeyAlreadyExists:
		m = "Key Already Exists"
	case UnknownParent:
		m = "Unknown Parent"
	case Closed:
		m = "Closed"
	}

	return fmt.Sprintf("%s, %s, %s", e.dataType, e.key, m)
}

// IsStore checks that an error, or the cause of a wrapped error, is a StoreErr
// of type t.
func IsStore(err error, t StoreErrType) bool {
	storeErr, ok := errors.Cause(err).(StoreErr)
	return ok && storeErr.errType == t
}
