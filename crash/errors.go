package crash

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
)

// Storage failure classes. Match with errors.Is.
var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotFound         = errors.New("not found")
	ErrDiskFull         = errors.New("no space left on device")
	ErrTimeout          = errors.New("operation timed out")
	ErrThrottled        = errors.New("rate limited")
	ErrAuth             = errors.New("authentication failed")
	ErrAccessDenied     = errors.New("access denied")
	ErrNetwork          = errors.New("network error")
	ErrInvalidKey       = errors.New("invalid crash record key")
	errUnclassified     = errors.New("storage error")
)

// StorageError is a classified crash store failure.
type StorageError struct {
	// Kind is one of the sentinel errors above.
	Kind error
	// Op is "write", "read", "list" or "init".
	Op string
	// Key is the record key involved, if any.
	Key string
	// Err is the underlying error.
	Err error
}

func (e *StorageError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("crash store %s %q: %v: %v", e.Op, e.Key, e.Kind, e.Err)
	}
	return fmt.Sprintf("crash store %s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is matches the classification sentinel.
func (e *StorageError) Is(target error) bool { return errors.Is(e.Kind, target) }

func wrap(op, key string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Kind: classify(err), Op: op, Key: key, Err: err}
}

// classify maps an error from a local or S3 store onto a sentinel. Typed
// checks run first; S3 and network failures are matched by message.
func classify(err error) error {
	var timeout interface{ Timeout() bool }
	switch {
	case errors.As(err, &timeout) && timeout.Timeout():
		return ErrTimeout
	case errors.Is(err, fs.ErrNotExist):
		return ErrNotFound
	case errors.Is(err, fs.ErrPermission):
		return ErrPermissionDenied
	}

	msg := strings.ToLower(err.Error())
	has := func(subs ...string) bool {
		for _, s := range subs {
			if strings.Contains(msg, strings.ToLower(s)) {
				return true
			}
		}
		return false
	}
	switch {
	case has("AccessDenied", "Forbidden", "403"):
		return ErrAccessDenied
	case has("permission denied", "EACCES"):
		return ErrPermissionDenied
	case has("no such file", "does not exist", "not found", "NoSuchKey", "404"):
		return ErrNotFound
	case has("no space left", "disk full", "ENOSPC", "quota exceeded"):
		return ErrDiskFull
	case has("timeout", "timed out", "deadline exceeded"):
		return ErrTimeout
	case has("SlowDown", "rate exceeded", "throttl", "429", "TooManyRequests"):
		return ErrThrottled
	case has("NoCredentialProviders", "credentials", "InvalidAccessKeyId",
		"SignatureDoesNotMatch", "ExpiredToken", "401", "Unauthorized"):
		return ErrAuth
	case has("connection refused", "no route to host", "network unreachable", "dial tcp", "dns"):
		return ErrNetwork
	}
	return errUnclassified
}
