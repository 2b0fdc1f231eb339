package cache

import (
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed assets.toml
var assetsTOML []byte

// Manifest lists the static assets known at build time.
type Manifest struct {
	Assets          []string `toml:"assets"`
	ImageExtensions []string `toml:"image_extensions"`
}

// DefaultManifest parses the embedded asset list.
func DefaultManifest() (*Manifest, error) {
	return parseManifest(assetsTOML, "assets.toml")
}

// LoadManifest reads a manifest file, or the embedded one when path is
// empty.
func LoadManifest(path string) (*Manifest, error) {
	if path == "" {
		return DefaultManifest()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	return parseManifest(data, path)
}

func parseManifest(data []byte, name string) (*Manifest, error) {
	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", name, err)
	}
	for _, asset := range m.Assets {
		if !strings.HasPrefix(asset, "/") {
			u, err := url.Parse(asset)
			if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
				return nil, fmt.Errorf("%s: asset %q is neither a path nor an http(s) URL", name, asset)
			}
		}
	}
	return &m, nil
}

// Resolve turns every asset into an absolute URL on origin.
func (m *Manifest) Resolve(origin *url.URL) []string {
	out := make([]string, 0, len(m.Assets))
	for _, asset := range m.Assets {
		ref, err := url.Parse(asset)
		if err != nil {
			continue
		}
		out = append(out, origin.ResolveReference(ref).String())
	}
	return out
}

func (m *Manifest) isImage(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if ext == "" {
		return false
	}
	for _, e := range m.ImageExtensions {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}
