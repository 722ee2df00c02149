// Package diskspace estimates conversion output size and checks it
// against free space before a job starts.
package diskspace

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

const (
	// wordsPerMinute is a typical narration pace.
	wordsPerMinute = 150
	// wavBytesPerSecond is 24 kHz mono 16-bit PCM.
	wavBytesPerSecond = 24000 * 2
	// aacBytesPerSecond is 128 kbit/s, written twice (combined and final).
	aacBytesPerSecond = 128000 / 8 * 2
	// margin covers transcoded chapter copies and sidecars.
	margin = 1.2
)

// ErrInsufficientSpace matches any *ResourceError.
var ErrInsufficientSpace = errors.New("insufficient disk space")

// ResourceError reports a disk shortfall.
type ResourceError struct {
	Path      string
	Required  uint64
	Available uint64
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("insufficient disk space at %s: need %s, have %s",
		e.Path, FormatBytes(e.Required), FormatBytes(e.Available))
}

func (e *ResourceError) Is(target error) bool { return target == ErrInsufficientSpace }

// Estimate returns the bytes a conversion of words will occupy at peak:
// chapter WAV checkpoints plus the encoded container.
func Estimate(words int) uint64 {
	if words <= 0 {
		return 0
	}
	seconds := float64(words) / wordsPerMinute * 60
	return uint64(seconds * (wavBytesPerSecond + aacBytesPerSecond) * margin)
}

// Available returns the free bytes for unprivileged users on the
// filesystem holding path.
func Available(path string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", path, err)
	}
	return st.Bavail * uint64(st.Bsize), nil
}

// Check fails with *ResourceError when path lacks required free bytes.
func Check(path string, required uint64) error {
	avail, err := Available(path)
	if err != nil {
		return err
	}
	if avail < required {
		return &ResourceError{Path: path, Required: required, Available: avail}
	}
	return nil
}

// FormatBytes renders n with a binary unit.
func FormatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
