package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"syscall"

	"meditrack.dev/duct/storage/endpoint"
)

var (
	ErrConfiguration      = endpoint.ErrConfiguration
	ErrNotFound           = errors.New("path not found")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrDestinationIsFile  = errors.New("destination is a file")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

var taxonomy = []error{
	ErrConfiguration,
	ErrNotFound,
	ErrPermissionDenied,
	ErrDestinationIsFile,
	ErrStorageUnavailable,
}

// wrapErr adds the operation and path to a backend error and tags it with the
// matching taxonomy sentinel. Errors that already carry a sentinel are only
// annotated.
func wrapErr(op, path string, err error) error {
	for _, sentinel := range taxonomy {
		if errors.Is(err, sentinel) {
			return fmt.Errorf("%s %s: %w", op, path, err)
		}
	}

	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%s %s: %w: %w", op, path, ErrNotFound, err)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%s %s: %w: %w", op, path, ErrPermissionDenied, err)
	case isUnavailable(err):
		return fmt.Errorf("%s %s: %w: %w", op, path, ErrStorageUnavailable, err)
	default:
		return fmt.Errorf("%s %s: %w", op, path, err)
	}
}

func isUnavailable(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET)
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, ErrNotFound)
}
