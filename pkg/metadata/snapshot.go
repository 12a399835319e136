// Package metadata caches the warehouse's reference tables in an immutable
// in-memory snapshot. Resolvers do every name lookup against the snapshot;
// the warehouse is only consulted for data rows. Snapshots are replaced
// wholesale by an atomic pointer swap, so a resolution that started on one
// snapshot finishes on it even if a refresh lands mid-flight.
package metadata

import (
	"strings"
	"time"

	"github.com/finsight-hq/finsight-engine/pkg/models"
)

// Tables carries the raw metadata rows a snapshot is built from.
type Tables struct {
	Companies        []models.Company
	Sectors          []models.Sector
	Industries       []models.Industry
	SectorIndustries []models.IndustrySectorMapping
	RegularHeads     []models.MetricHead
	RatioHeads       []models.MetricHead
	DissectionGroups []models.DissectionGroup
	Terms            []models.Term
	Consolidations   []models.ConsolidationType
	Units            []models.Unit
}

// Snapshot is an immutable view of the warehouse reference tables with
// lookup indexes. All methods are pure; none touch the warehouse.
type Snapshot struct {
	loadedAt time.Time

	companies      []models.Company
	sectors        map[int]models.Sector
	industries     map[int]models.Industry
	regularHeads   []models.MetricHead
	ratioHeads     []models.MetricHead
	groups         map[int]models.DissectionGroup
	terms          []models.Term
	consolidations []models.ConsolidationType
	units          map[int]models.Unit

	industryForSector map[int]int
	sectorIndustries  map[int]map[int]struct{}

	byTicker            map[string]int
	byName              map[string]int
	regularByName       map[string][]int
	ratioByName         map[string][]int
	termByID            map[int]models.Term
	termByLabel         map[string]models.Term
	consolidationByName map[string]models.ConsolidationType
}

// NewSnapshot builds a snapshot from raw table rows. Companies without an
// industry id get one derived through the sector/industry mapping, matching
// how the warehouse links companies to their head universe.
func NewSnapshot(t Tables) *Snapshot {
	s := &Snapshot{
		loadedAt:       time.Now().UTC(),
		companies:      t.Companies,
		sectors:        make(map[int]models.Sector, len(t.Sectors)),
		industries:     make(map[int]models.Industry, len(t.Industries)),
		regularHeads:   t.RegularHeads,
		ratioHeads:     t.RatioHeads,
		groups:         make(map[int]models.DissectionGroup, len(t.DissectionGroups)),
		terms:          t.Terms,
		consolidations: t.Consolidations,
		units:          make(map[int]models.Unit, len(t.Units)),

		industryForSector: make(map[int]int),
		sectorIndustries:  make(map[int]map[int]struct{}),

		byTicker:            make(map[string]int, len(t.Companies)),
		byName:              make(map[string]int, len(t.Companies)),
		regularByName:       make(map[string][]int),
		ratioByName:         make(map[string][]int),
		termByID:            make(map[int]models.Term, len(t.Terms)),
		termByLabel:         make(map[string]models.Term, len(t.Terms)),
		consolidationByName: make(map[string]models.ConsolidationType, len(t.Consolidations)),
	}

	for _, sec := range t.Sectors {
		s.sectors[sec.SectorID] = sec
	}
	for _, ind := range t.Industries {
		s.industries[ind.IndustryID] = ind
	}
	for _, m := range t.SectorIndustries {
		if _, ok := s.industryForSector[m.SectorID]; !ok {
			s.industryForSector[m.SectorID] = m.IndustryID
		}
		set, ok := s.sectorIndustries[m.SectorID]
		if !ok {
			set = make(map[int]struct{})
			s.sectorIndustries[m.SectorID] = set
		}
		set[m.IndustryID] = struct{}{}
	}

	for i := range s.companies {
		c := &s.companies[i]
		if c.IndustryID == 0 {
			c.IndustryID = s.industryForSector[c.SectorID]
		}
		if c.Ticker != "" {
			s.byTicker[strings.ToLower(c.Ticker)] = i
		}
		if c.Name != "" {
			s.byName[strings.ToLower(c.Name)] = i
		}
	}

	for i, h := range s.regularHeads {
		key := strings.ToLower(h.Name)
		s.regularByName[key] = append(s.regularByName[key], i)
	}
	for i, h := range s.ratioHeads {
		key := strings.ToLower(h.Name)
		s.ratioByName[key] = append(s.ratioByName[key], i)
	}

	for _, g := range t.DissectionGroups {
		s.groups[g.GroupID] = g
	}
	for _, term := range t.Terms {
		s.termByID[term.TermID] = term
		s.termByLabel[strings.ToLower(term.Label)] = term
	}
	for _, con := range t.Consolidations {
		s.consolidationByName[strings.ToLower(con.Name)] = con
	}
	for _, u := range t.Units {
		s.units[u.UnitID] = u
	}

	return s
}

// LoadedAt reports when the snapshot was built.
func (s *Snapshot) LoadedAt() time.Time { return s.loadedAt }

// Companies returns all companies. Callers must not mutate the slice.
func (s *Snapshot) Companies() []models.Company { return s.companies }

// CompanyByTicker finds a company by its exchange symbol, case-insensitive.
func (s *Snapshot) CompanyByTicker(ticker string) (models.Company, bool) {
	i, ok := s.byTicker[strings.ToLower(strings.TrimSpace(ticker))]
	if !ok {
		return models.Company{}, false
	}
	return s.companies[i], true
}

// CompanyByName finds a company by exact full name, case-insensitive.
func (s *Snapshot) CompanyByName(name string) (models.Company, bool) {
	i, ok := s.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return models.Company{}, false
	}
	return s.companies[i], true
}

// ContextFor wraps a company with the sector/industry pair the metric
// cascade filters against.
func (s *Snapshot) ContextFor(c models.Company) models.CompanyContext {
	return models.CompanyContext{Company: c, SectorID: c.SectorID, IndustryID: c.IndustryID}
}

// Sector looks up a sector row by id.
func (s *Snapshot) Sector(id int) (models.Sector, bool) {
	sec, ok := s.sectors[id]
	return sec, ok
}

// Industry looks up an industry row by id.
func (s *Snapshot) Industry(id int) (models.Industry, bool) {
	ind, ok := s.industries[id]
	return ind, ok
}

// IndustryForSector returns the industry a sector maps to.
func (s *Snapshot) IndustryForSector(sectorID int) (int, bool) {
	id, ok := s.industryForSector[sectorID]
	return id, ok
}

// IndustryMatchesSector reports whether a head's industry is valid for a
// company's sector under the industry/sector mapping.
func (s *Snapshot) IndustryMatchesSector(industryID, sectorID int) bool {
	set, ok := s.sectorIndustries[sectorID]
	if !ok {
		return false
	}
	_, ok = set[industryID]
	return ok
}

// RegularHeads returns every regular head. Callers must not mutate.
func (s *Snapshot) RegularHeads() []models.MetricHead { return s.regularHeads }

// RatioHeads returns every ratio head. Callers must not mutate.
func (s *Snapshot) RatioHeads() []models.MetricHead { return s.ratioHeads }

// RegularHeadsByName returns regular heads whose name matches exactly,
// case-insensitive. Several industries can define a head under one name.
func (s *Snapshot) RegularHeadsByName(name string) []models.MetricHead {
	return headsAt(s.regularHeads, s.regularByName[strings.ToLower(strings.TrimSpace(name))])
}

// RatioHeadsByName returns ratio heads whose name matches exactly,
// case-insensitive.
func (s *Snapshot) RatioHeadsByName(name string) []models.MetricHead {
	return headsAt(s.ratioHeads, s.ratioByName[strings.ToLower(strings.TrimSpace(name))])
}

func headsAt(heads []models.MetricHead, idx []int) []models.MetricHead {
	if len(idx) == 0 {
		return nil
	}
	out := make([]models.MetricHead, len(idx))
	for i, j := range idx {
		out[i] = heads[j]
	}
	return out
}

// DissectionGroup looks up a dissection group by id.
func (s *Snapshot) DissectionGroup(id int) (models.DissectionGroup, bool) {
	g, ok := s.groups[id]
	return g, ok
}

// Terms returns every term row. Callers must not mutate.
func (s *Snapshot) Terms() []models.Term { return s.terms }

// TermByID looks up a term row.
func (s *Snapshot) TermByID(id int) (models.Term, bool) {
	t, ok := s.termByID[id]
	return t, ok
}

// TermByLabel finds a term by its label ("3M", "12M", "TTM"),
// case-insensitive.
func (s *Snapshot) TermByLabel(label string) (models.Term, bool) {
	t, ok := s.termByLabel[strings.ToLower(strings.TrimSpace(label))]
	return t, ok
}

// Consolidations returns every consolidation row. Callers must not mutate.
func (s *Snapshot) Consolidations() []models.ConsolidationType { return s.consolidations }

// ConsolidationByName finds a consolidation type by name, case-insensitive.
func (s *Snapshot) ConsolidationByName(name string) (models.ConsolidationType, bool) {
	c, ok := s.consolidationByName[strings.ToLower(strings.TrimSpace(name))]
	return c, ok
}

// Unit looks up a unit of measurement by id.
func (s *Snapshot) Unit(id int) (models.Unit, bool) {
	u, ok := s.units[id]
	return u, ok
}
