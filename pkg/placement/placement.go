// Package placement validates the fixed memory layout of modules going into
// one library image. Modules are linked for a declared base address with no
// runtime relocation, so the only defense against two modules landing on the
// same memory is this build-time check: any intersection is fatal and no
// image is produced.
package placement

import (
	"errors"
	"fmt"
	"sort"

	"github.com/thesofproject/sof-lmdk/internal/types"
)

var (
	// ErrOverlap is returned when two placement ranges intersect.
	ErrOverlap = errors.New("placement ranges overlap")

	// ErrZeroSize is returned for a rule with no extent.
	ErrZeroSize = errors.New("placement size must not be zero")

	// ErrAddressWrap is returned when base+size overflows the 32-bit space.
	ErrAddressWrap = errors.New("placement range wraps the address space")
)

// Rule is one module's declared residence in the target memory space:
// the link-time base address plus the size implied by the built binary.
type Rule struct {
	Name string
	UUID types.UUID
	Base uint32
	Size uint32
}

// End returns the exclusive end of the range as a 64-bit value so the
// arithmetic cannot wrap.
func (r Rule) End() uint64 {
	return uint64(r.Base) + uint64(r.Size)
}

// Overlaps reports whether two rules' ranges intersect.
func (r Rule) Overlaps(other Rule) bool {
	return uint64(r.Base) < other.End() && uint64(other.Base) < r.End()
}

func (r Rule) String() string {
	return fmt.Sprintf("%s [0x%x, 0x%x)", r.Name, r.Base, r.End())
}

// Map is the pre-partitioned memory map for one image. Rules are admitted
// one at a time; an overlapping rule is rejected without mutating the map.
type Map struct {
	rules []Rule
}

// NewMap creates an empty memory map.
func NewMap() *Map {
	return &Map{}
}

// Add admits a rule into the map, failing on zero size, address wrap, or any
// intersection with an already admitted rule.
func (m *Map) Add(r Rule) error {
	if r.Size == 0 {
		return fmt.Errorf("%w: %s", ErrZeroSize, r.Name)
	}
	if r.End() > 1<<32 {
		return fmt.Errorf("%w: %s", ErrAddressWrap, r)
	}
	for _, existing := range m.rules {
		if existing.Overlaps(r) {
			return fmt.Errorf("%w: %s and %s", ErrOverlap, existing, r)
		}
	}
	m.rules = append(m.rules, r)
	return nil
}

// Rules returns the admitted rules sorted by base address.
func (m *Map) Rules() []Rule {
	out := make([]Rule, len(m.rules))
	copy(out, m.rules)
	sort.Slice(out, func(i, j int) bool { return out[i].Base < out[j].Base })
	return out
}

// Validate checks a whole rule set at once. It is what image assembly calls
// after merging every module's placement configuration.
func Validate(rules []Rule) error {
	m := NewMap()
	for _, r := range rules {
		if err := m.Add(r); err != nil {
			return err
		}
	}
	return nil
}
