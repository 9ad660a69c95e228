// Package loader is the executable-image provider boundary. The core
// only needs byte-slice access to a named flat image; directory and
// on-disk semantics live with the filesystem, outside this kernel.
package loader

import (
	"github.com/sasha-s/go-deadlock"

	sp "strideos/stridep"
)

// Segment is one loadable range: bytes placed at a virtual address under
// one permission set.
type Segment struct {
	Va   sp.Tvaddr
	Perm sp.Tmapperm
	Data []byte
}

// Image is a flat executable: segments plus an entry point.
type Image struct {
	Name     string
	Entry    sp.Tvaddr
	Segments []Segment
}

// End returns the highest virtual address any segment occupies.
func (img *Image) End() sp.Tvaddr {
	var end sp.Tvaddr
	for _, s := range img.Segments {
		if e := s.Va + sp.Tvaddr(len(s.Data)); e > end {
			end = e
		}
	}
	return end
}

// Registry is the named-file provider the kernel loads images from.
type Registry struct {
	mu   deadlock.Mutex
	imgs map[string]*Image
}

func NewRegistry() *Registry {
	return &Registry{imgs: make(map[string]*Image)}
}

func (r *Registry) Register(img *Image) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.imgs[img.Name] = img
}

func (r *Registry) Lookup(name string) (*Image, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	img, ok := r.imgs[name]
	return img, ok
}

func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.imgs))
	for n := range r.imgs {
		names = append(names, n)
	}
	return names
}
