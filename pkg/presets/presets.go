// Package presets holds the static compression and aspect ratio presets used
// by the ingestion pipeline.
package presets

import (
	"errors"
	"fmt"
	"sort"
)

// EncodingWebP is the only target encoding the pipeline produces
const EncodingWebP = "webp"

// ErrInvalidPreset is returned by Validate for out-of-range parameters
var ErrInvalidPreset = errors.New("invalid compression preset")

// Name identifies a compression preset by use case
type Name string

const (
	Avatar         Name = "avatar"
	ProjectHero    Name = "projectHero"
	ProjectGallery Name = "projectGallery"
	Product        Name = "product"
	Default        Name = "default"
)

// Compression is a named, immutable bundle of compression parameters
type Compression struct {
	Name           Name    `json:"name" yaml:"name"`
	MaxSizeMB      float64 `json:"max_size_mb" yaml:"max_size_mb"`
	MaxDimensionPx int     `json:"max_dimension_px" yaml:"max_dimension_px"`
	Quality        float64 `json:"quality" yaml:"quality"`
	TargetEncoding string  `json:"target_encoding" yaml:"target_encoding"`
}

// MaxBytes returns the size budget in bytes
func (c Compression) MaxBytes() int64 {
	return int64(c.MaxSizeMB * 1024 * 1024)
}

// Validate checks that the preset has usable values
func (c Compression) Validate() error {
	switch {
	case c.Name == "":
		return fmt.Errorf("%w: empty name", ErrInvalidPreset)
	case c.MaxSizeMB <= 0:
		return fmt.Errorf("%w: %s: max size must be positive", ErrInvalidPreset, c.Name)
	case c.MaxDimensionPx <= 0:
		return fmt.Errorf("%w: %s: max dimension must be positive", ErrInvalidPreset, c.Name)
	case c.Quality <= 0 || c.Quality > 1:
		return fmt.Errorf("%w: %s: quality must be in (0,1]", ErrInvalidPreset, c.Name)
	case c.TargetEncoding != EncodingWebP:
		return fmt.Errorf("%w: %s: unsupported target encoding %q", ErrInvalidPreset, c.Name, c.TargetEncoding)
	}
	return nil
}

var defaults = map[Name]Compression{
	Avatar:         {Name: Avatar, MaxSizeMB: 0.5, MaxDimensionPx: 400, Quality: 0.8, TargetEncoding: EncodingWebP},
	ProjectHero:    {Name: ProjectHero, MaxSizeMB: 1.5, MaxDimensionPx: 1920, Quality: 0.85, TargetEncoding: EncodingWebP},
	ProjectGallery: {Name: ProjectGallery, MaxSizeMB: 1, MaxDimensionPx: 1200, Quality: 0.8, TargetEncoding: EncodingWebP},
	Product:        {Name: Product, MaxSizeMB: 0.8, MaxDimensionPx: 800, Quality: 0.8, TargetEncoding: EncodingWebP},
	Default:        {Name: Default, MaxSizeMB: 1, MaxDimensionPx: 1200, Quality: 0.8, TargetEncoding: EncodingWebP},
}

// Registry is an immutable name -> preset lookup. The zero value is not usable;
// build one with NewRegistry or use Builtin.
type Registry struct {
	presets map[Name]Compression
}

// Builtin returns the registry with the compiled-in presets
func Builtin() *Registry {
	r, _ := NewRegistry(nil)
	return r
}

// NewRegistry returns the built-in presets with the given overrides applied.
// Overrides are a deployment-time concern; the registry cannot be changed afterwards.
func NewRegistry(overrides []Compression) (*Registry, error) {
	m := make(map[Name]Compression, len(defaults)+len(overrides))
	for k, v := range defaults {
		m[k] = v
	}
	for _, o := range overrides {
		if o.TargetEncoding == "" {
			o.TargetEncoding = EncodingWebP
		}
		if err := o.Validate(); err != nil {
			return nil, err
		}
		m[o.Name] = o
	}
	return &Registry{presets: m}, nil
}

// Lookup returns the preset for name and whether it exists
func (r *Registry) Lookup(name Name) (Compression, bool) {
	p, ok := r.presets[name]
	return p, ok
}

// Get returns the preset for name, falling back to the default preset
func (r *Registry) Get(name Name) Compression {
	if p, ok := r.presets[name]; ok {
		return p
	}
	return r.presets[Default]
}

// Names returns every registered preset name in sorted order
func (r *Registry) Names() []Name {
	names := make([]Name, 0, len(r.presets))
	for n := range r.presets {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// List returns every preset sorted by name
func (r *Registry) List() []Compression {
	out := make([]Compression, 0, len(r.presets))
	for _, n := range r.Names() {
		out = append(out, r.presets[n])
	}
	return out
}

// Get looks a name up in the built-in presets, falling back to Default
func Get(name Name) Compression {
	if p, ok := defaults[name]; ok {
		return p
	}
	return defaults[Default]
}
