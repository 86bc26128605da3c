// Package catalog loads the site/asset catalogue from YAML and serves it as an
// immutable registry for the rest of the process.
package catalog

import (
	"fmt"
	"os"
	"sort"

	"github.com/google/uuid"
	"gopkg.in/yaml.v2"

	"github.com/voltgrid/bess/internal/sim"
)

// Site groups assets for dispatch fan-out.
type Site struct {
	ID       uuid.UUID `json:"id" yaml:"id"`
	Name     string    `json:"name" yaml:"name"`
	Location string    `json:"location" yaml:"location"`
}

type fileDoc struct {
	Sites  []siteDoc  `yaml:"sites"`
	Assets []assetDoc `yaml:"assets"`
}

type siteDoc struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Location string `yaml:"location"`
}

type assetDoc struct {
	ID               string   `yaml:"id"`
	SiteID           string   `yaml:"site_id"`
	Name             string   `yaml:"name"`
	Location         string   `yaml:"location"`
	CapacityMWhr     float64  `yaml:"capacity_mwhr"`
	MaxMW            float64  `yaml:"max_mw"`
	MinMW            float64  `yaml:"min_mw"`
	MinSocPct        *float64 `yaml:"min_soc_pct"`
	MaxSocPct        *float64 `yaml:"max_soc_pct"`
	Efficiency       float64  `yaml:"efficiency"`
	RampRateMWPerMin float64  `yaml:"ramp_rate_mw_per_min"`
}

// Registry is the process-wide asset catalogue. Built once by Load and never
// mutated, so readers need no lock.
type Registry struct {
	sites    map[uuid.UUID]Site
	assets   map[uuid.UUID]*sim.Asset
	bySite   map[uuid.UUID][]*sim.Asset
	ordered  []*sim.Asset
	siteList []Site
}

// Load reads the catalogue document at path. Every asset must reference a
// declared site; an unresolved site_id is fatal.
func Load(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalogue %s: %w", path, err)
	}
	defer f.Close()

	var doc fileDoc
	if err := yaml.NewDecoder(f).Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse catalogue %s: %w", path, err)
	}
	return build(&doc)
}

func build(doc *fileDoc) (*Registry, error) {
	r := &Registry{
		sites:  make(map[uuid.UUID]Site, len(doc.Sites)),
		assets: make(map[uuid.UUID]*sim.Asset, len(doc.Assets)),
		bySite: make(map[uuid.UUID][]*sim.Asset),
	}
	for _, s := range doc.Sites {
		id, err := uuid.Parse(s.ID)
		if err != nil {
			return nil, fmt.Errorf("site %q: bad id: %w", s.Name, err)
		}
		site := Site{ID: id, Name: s.Name, Location: s.Location}
		r.sites[id] = site
		r.siteList = append(r.siteList, site)
	}
	for _, a := range doc.Assets {
		id, err := uuid.Parse(a.ID)
		if err != nil {
			return nil, fmt.Errorf("asset %q: bad id: %w", a.Name, err)
		}
		siteID, err := uuid.Parse(a.SiteID)
		if err != nil {
			return nil, fmt.Errorf("asset %q: bad site_id: %w", a.Name, err)
		}
		site, ok := r.sites[siteID]
		if !ok {
			return nil, fmt.Errorf("asset %q references unknown site %s", a.Name, siteID)
		}
		minPct, maxPct := 0.0, 100.0
		if a.MinSocPct != nil {
			minPct = *a.MinSocPct
		}
		if a.MaxSocPct != nil {
			maxPct = *a.MaxSocPct
		}
		asset := &sim.Asset{
			ID:               id,
			SiteID:           siteID,
			SiteName:         site.Name,
			Name:             a.Name,
			Location:         a.Location,
			CapacityMWhr:     a.CapacityMWhr,
			MaxMW:            a.MaxMW,
			MinMW:            a.MinMW,
			MinSocPct:        minPct,
			MaxSocPct:        maxPct,
			Efficiency:       a.Efficiency,
			RampRateMWPerMin: a.RampRateMWPerMin,
		}
		if _, dup := r.assets[id]; dup {
			return nil, fmt.Errorf("duplicate asset id %s", id)
		}
		r.assets[id] = asset
		r.bySite[siteID] = append(r.bySite[siteID], asset)
		r.ordered = append(r.ordered, asset)
	}
	sort.Slice(r.ordered, func(i, j int) bool {
		return r.ordered[i].ID.String() < r.ordered[j].ID.String()
	})
	for _, list := range r.bySite {
		sort.Slice(list, func(i, j int) bool {
			return list[i].ID.String() < list[j].ID.String()
		})
	}
	sort.Slice(r.siteList, func(i, j int) bool {
		return r.siteList[i].ID.String() < r.siteList[j].ID.String()
	})
	return r, nil
}

// ListAll returns all assets sorted by id.
func (r *Registry) ListAll() []*sim.Asset {
	out := make([]*sim.Asset, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// ByID looks an asset up; second result is false when unknown.
func (r *Registry) ByID(id uuid.UUID) (*sim.Asset, bool) {
	a, ok := r.assets[id]
	return a, ok
}

// BySite returns the site's assets sorted by id.
func (r *Registry) BySite(siteID uuid.UUID) []*sim.Asset {
	list := r.bySite[siteID]
	out := make([]*sim.Asset, len(list))
	copy(out, list)
	return out
}

// Sites returns all declared sites sorted by id.
func (r *Registry) Sites() []Site {
	out := make([]Site, len(r.siteList))
	copy(out, r.siteList)
	return out
}

// Site looks a site up by id.
func (r *Registry) Site(id uuid.UUID) (Site, bool) {
	s, ok := r.sites[id]
	return s, ok
}
