// Package facility owns facility identity resolution and per-facility
// profile accumulation for one extraction session.
package facility

import (
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/valuation-cli/internal/model"
)

// UnknownFacility is the sentinel profile name for records that arrive with
// no facility name. Mapping instead of failing keeps partial reader output
// from aborting ingestion.
const UnknownFacility = "Unknown Facility"

// Resolver maps facility names and aliases onto session-scoped profiles.
// Owned by one session; not safe for concurrent use.
type Resolver struct {
	profiles map[string]*model.FacilityProfile // by id
	byName   map[string]string                 // normalized name/alias -> id
	order    []string                          // creation order
}

// NewResolver creates an empty resolver.
func NewResolver() *Resolver {
	return &Resolver{
		profiles: make(map[string]*model.FacilityProfile),
		byName:   make(map[string]string),
	}
}

// NormalizeName lowercases, strips punctuation, and collapses whitespace so
// "A.B.C.  Center" and "abc center" resolve identically.
func NormalizeName(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '\t', r == '\n':
			b.WriteRune(' ')
		}
		// Everything else (punctuation) is dropped.
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Resolve returns the profile id matching the given name or alias.
func (r *Resolver) Resolve(nameOrAlias string) (string, bool) {
	id, ok := r.byName[NormalizeName(nameOrAlias)]
	return id, ok
}

// FindOrCreate resolves a name to an existing profile or creates a new one.
// A matched raw spelling not seen before is registered as an alias. Returns
// the profile and whether it was newly created.
func (r *Resolver) FindOrCreate(name string) (*model.FacilityProfile, bool) {
	raw := strings.TrimSpace(name)
	if raw == "" {
		raw = UnknownFacility
	}
	norm := NormalizeName(raw)

	if id, ok := r.byName[norm]; ok {
		p := r.profiles[id]
		if raw != p.Name && !p.HasAlias(raw) {
			p.Aliases = append(p.Aliases, raw)
			zap.L().Debug("facility: registered alias",
				zap.String("facility_id", p.ID),
				zap.String("alias", raw),
			)
		}
		return p, false
	}

	p := &model.FacilityProfile{
		ID:   uuid.New().String(),
		Name: raw,
	}
	r.profiles[p.ID] = p
	r.byName[norm] = p.ID
	r.order = append(r.order, p.ID)

	zap.L().Info("facility: created profile",
		zap.String("facility_id", p.ID),
		zap.String("name", raw),
	)
	return p, true
}

// Get returns a profile by id, or nil.
func (r *Resolver) Get(id string) *model.FacilityProfile {
	return r.profiles[id]
}

// Profiles returns all profiles in creation order.
func (r *Resolver) Profiles() []*model.FacilityProfile {
	out := make([]*model.FacilityProfile, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.profiles[id])
	}
	return out
}

// Absorb re-points every name and alias of a merged-away profile at the
// surviving one, so later documents using retired spellings still resolve.
func (r *Resolver) Absorb(survivorID, retiredID string) {
	retired, ok := r.profiles[retiredID]
	if !ok || survivorID == retiredID {
		return
	}
	for norm, id := range r.byName {
		if id == retiredID {
			r.byName[norm] = survivorID
		}
	}
	delete(r.profiles, retiredID)
	for i, id := range r.order {
		if id == retiredID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	zap.L().Info("facility: absorbed profile",
		zap.String("survivor", survivorID),
		zap.String("retired", retired.ID),
	)
}
