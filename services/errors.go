package services

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"syscall"
)

// Failure taxonomy for the acquisition pipeline. Callers match with
// errors.Is; Retryable decides whether the coordinator schedules another
// attempt or parks the film as permanently failed.
var (
	// ErrNotAvailable: film status does not allow fetching, or no remote id.
	ErrNotAvailable = errors.New("film not available for download")
	// ErrNotFound: the remote id no longer exists at the provider.
	ErrNotFound = errors.New("remote video not found")
	// ErrResolution: could not resolve a streamable URL (transient API trouble).
	ErrResolution = errors.New("stream resolution failed")
	// ErrNetwork: connection reset, timeout, 5xx during transfer.
	ErrNetwork = errors.New("network error")
	// ErrAuth: remote denies access; retrying without intervention is pointless.
	ErrAuth = errors.New("remote denied access")
	// ErrDisk: no space or no permission at the destination.
	ErrDisk = errors.New("disk error")
	// ErrSizeMismatch: transfer ended but byte count disagrees with the
	// expected length; next attempt restarts from zero.
	ErrSizeMismatch = errors.New("size mismatch after transfer")
	// ErrClaimConflict: another worker holds the claim. Not a failure.
	ErrClaimConflict = errors.New("film already claimed")
)

// Retryable reports whether another attempt may succeed without operator
// intervention.
func Retryable(err error) bool {
	return errors.Is(err, ErrNetwork) ||
		errors.Is(err, ErrResolution) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrSizeMismatch)
}

// classifyTransferError maps low-level I/O failures onto the taxonomy.
// Context cancellation passes through untouched so shutdown isn't counted
// as a download failure.
func classifyTransferError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		// A per-attempt deadline is a timeout, so retryable network
		// trouble. A parent cancellation is shutdown.
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %v", ErrNetwork, err)
		}
		return err
	}
	if errors.Is(err, syscall.ENOSPC) || errors.Is(err, fs.ErrPermission) {
		return fmt.Errorf("%w: %v", ErrDisk, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	// Unrecognized transfer failures get retried like network errors rather
	// than parking the film forever on a one-off.
	return fmt.Errorf("%w: %v", ErrNetwork, err)
}
