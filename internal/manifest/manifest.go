// Package manifest loads and watches the static resource manifest: the
// ordered list of paths that must be cached before a worker version reports
// installed.
package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrEmptyManifest is returned when the manifest lists no resources.
var ErrEmptyManifest = errors.New("manifest lists no resources")

// versionHashLength truncates derived versions to a readable prefix.
const versionHashLength = 12

// Manifest is the static resource list for one site deployment.
type Manifest struct {
	// Resources is the ordered list of origin-relative paths to precache.
	Resources []string `yaml:"resources"`
	// Fallback overrides the offline fallback document. Defaults to "/".
	Fallback string `yaml:"fallback"`
}

// Load reads and validates a manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	return &m, nil
}

// Validate checks the manifest for structural problems.
func (m *Manifest) Validate() error {
	if len(m.Resources) == 0 {
		return ErrEmptyManifest
	}

	seen := make(map[string]bool, len(m.Resources))
	for _, res := range m.Resources {
		if !strings.HasPrefix(res, "/") {
			return fmt.Errorf("resource %q must be origin-relative", res)
		}
		if seen[res] {
			return fmt.Errorf("resource %q listed twice", res)
		}
		seen[res] = true
	}

	if m.Fallback != "" && !strings.HasPrefix(m.Fallback, "/") {
		return fmt.Errorf("fallback %q must be origin-relative", m.Fallback)
	}
	return nil
}

// FallbackPath returns the offline fallback document path.
func (m *Manifest) FallbackPath() string {
	if m.Fallback != "" {
		return m.Fallback
	}
	return "/"
}

// Hash derives a short content hash of the manifest, used as the store
// version when the configured version is "auto". Any change to the resource
// list rolls the version.
func (m *Manifest) Hash() string {
	h := sha256.New()
	for _, res := range m.Resources {
		h.Write([]byte(res))
		h.Write([]byte{'\n'})
	}
	h.Write([]byte(m.FallbackPath()))
	return hex.EncodeToString(h.Sum(nil))[:versionHashLength]
}
