package configfile

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/combatlog/combatlog/internal/safefile"
)

// sanitizePathError removes the path from os.PathError to prevent information leakage.
func sanitizePathError(err error) error {
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return fmt.Errorf("%s: %w", pathErr.Op, pathErr.Err)
	}
	return err
}

const (
	// MaxManifestFileSize is the maximum allowed size for a manifest file (1MB).
	MaxManifestFileSize = 1 * 1024 * 1024

	// MaxPluginCount is the maximum number of plugin entries allowed in a manifest.
	MaxPluginCount = 1000

	// SupportedVersion is the currently supported manifest format version.
	SupportedVersion = 1
)

// Load reads and parses a plugin manifest from the given path.
//
// Security: protects against FIFO/device file DoS by checking the path
// with Lstat before opening it and stat-ing the opened file descriptor
// (safefile.OpenRegular, avoiding TOCTOU), rejecting non-regular files
// and symlinks, and enforcing a size limit while reading.
func Load(path string) (*ManifestFile, error) {
	f, info, err := safefile.OpenRegular(path)
	if err != nil {
		if errors.Is(err, safefile.ErrNotRegularFile) {
			return nil, errors.New("manifest file must be a regular file (not FIFO, device, or special file)")
		}
		return nil, fmt.Errorf("failed to open manifest file: %w", sanitizePathError(err))
	}
	defer f.Close()

	if info.Size() == 0 {
		return nil, errors.New("manifest file is empty")
	}
	if info.Size() > MaxManifestFileSize {
		return nil, fmt.Errorf("manifest file too large: %d bytes (max %d)", info.Size(), MaxManifestFileSize)
	}

	data, err := io.ReadAll(io.LimitReader(f, MaxManifestFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest file: %w", sanitizePathError(err))
	}
	if len(data) > MaxManifestFileSize {
		return nil, fmt.Errorf("manifest file too large: %d bytes (max %d)", len(data), MaxManifestFileSize)
	}

	return LoadBytes(data)
}

// LoadBytes parses a plugin manifest from a byte slice.
func LoadBytes(data []byte) (*ManifestFile, error) {
	if len(data) == 0 {
		return nil, errors.New("manifest file is empty")
	}
	if len(data) > MaxManifestFileSize {
		return nil, fmt.Errorf("manifest file too large: %d bytes (max %d)", len(data), MaxManifestFileSize)
	}

	var mf ManifestFile
	if err := yaml.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := mf.Validate(); err != nil {
		return nil, err
	}

	return &mf, nil
}

// Validate performs schema-level validation on the manifest:
//   - supported version number
//   - at least one plugin entry, bounded by MaxPluginCount
//   - required fields per entry (id; path when kind is wasm)
//   - unique entry ids
func (mf *ManifestFile) Validate() error {
	if mf.Version != SupportedVersion {
		return &ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (only version %d is supported)", mf.Version, SupportedVersion),
		}
	}

	if len(mf.Plugins) == 0 {
		return &ValidationError{
			Field:   "plugins",
			Message: "at least one plugin entry is required",
		}
	}
	if len(mf.Plugins) > MaxPluginCount {
		return &ValidationError{
			Field:   "plugins",
			Message: fmt.Sprintf("too many plugin entries (%d), maximum allowed is %d", len(mf.Plugins), MaxPluginCount),
		}
	}

	seenIDs := make(map[string]int, len(mf.Plugins))

	for i, p := range mf.Plugins {
		if p.ID == "" {
			return &EntryError{Index: i, Field: "id", Message: "id is required"}
		}
		if prevIndex, exists := seenIDs[p.ID]; exists {
			return &EntryError{
				Index:   i,
				ID:      p.ID,
				Field:   "id",
				Message: fmt.Sprintf("duplicate id (previously defined at plugins[%d])", prevIndex),
			}
		}
		seenIDs[p.ID] = i

		switch p.EffectiveKind() {
		case KindWasm:
			if p.Path == "" {
				return &EntryError{Index: i, ID: p.ID, Field: "path", Message: "path is required for kind: wasm"}
			}
		case KindBuiltin:
			// no further required fields: the host resolves id against
			// its own builtin registry at RegisterPlugin time.
		default:
			return &EntryError{Index: i, ID: p.ID, Field: "kind", Message: fmt.Sprintf("unknown kind %q", p.Kind)}
		}
	}

	return nil
}
