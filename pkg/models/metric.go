package models

import "fmt"

// MetricKind identifies which head family a metric belongs to. The kind
// decides the data table family and which master table defines the head.
type MetricKind string

const (
	KindRegular    MetricKind = "regular"
	KindRatio      MetricKind = "ratio"
	KindDissection MetricKind = "dissection"
)

// Dissection group identifiers, fixed by the warehouse.
const (
	DissectionPerShare        = 1
	DissectionAnnualGrowth    = 2
	DissectionPercentOfAssets = 3
	DissectionPercentOfSales  = 4
	DissectionQuarterlyGrowth = 5
)

// DissectionGroup is a warehouse dissection group row (per-share, growth,
// percentage-of-base breakdowns of a regular metric).
type DissectionGroup struct {
	GroupID int    `json:"group_id"`
	Name    string `json:"name"`
}

// DataFamily returns which dissection data table family holds a group's
// rows: per-share values live alongside regular data, growth percentages in
// the ratio variant, quarter-over-quarter growth in the quarterly variant.
func (g DissectionGroup) DataFamily() TableFamily {
	return DissectionGroupFamily(g.GroupID)
}

// DissectionGroupFamily maps a dissection group id to its data table family.
func DissectionGroupFamily(groupID int) TableFamily {
	switch groupID {
	case DissectionPerShare:
		return FamilyAnnual
	case DissectionQuarterlyGrowth:
		return FamilyQuarterly
	case DissectionAnnualGrowth, DissectionPercentOfAssets, DissectionPercentOfSales:
		return FamilyRatio
	default:
		return FamilyAnnual
	}
}

// MetricHead is a named financial line item (regular), ratio definition, or
// dissection breakdown that values are recorded against. DissectionGroupID
// is set only when Kind is KindDissection.
type MetricHead struct {
	HeadID            int        `json:"head_id"`
	Name              string     `json:"name"`
	IndustryID        int        `json:"industry_id"`
	Kind              MetricKind `json:"kind"`
	DissectionGroupID int        `json:"dissection_group_id,omitempty"`

	// RatioMaster records that the head's name lives in the ratio head
	// master rather than the regular one. Always true for ratio heads.
	// Dissection heads can come from either master; the flag decides which
	// one the retrieval joins for display names.
	RatioMaster bool `json:"ratio_master,omitempty"`
}

// NewRegularHead builds a regular-kind head.
func NewRegularHead(headID int, name string, industryID int) MetricHead {
	return MetricHead{HeadID: headID, Name: name, IndustryID: industryID, Kind: KindRegular}
}

// NewRatioHead builds a ratio-kind head.
func NewRatioHead(headID int, name string, industryID int) MetricHead {
	return MetricHead{HeadID: headID, Name: name, IndustryID: industryID, Kind: KindRatio, RatioMaster: true}
}

// NewDissectionHead builds a dissection-kind head bound to a group.
func NewDissectionHead(headID int, name string, industryID, groupID int) MetricHead {
	return MetricHead{
		HeadID:            headID,
		Name:              name,
		IndustryID:        industryID,
		Kind:              KindDissection,
		DissectionGroupID: groupID,
	}
}

// Validate rejects kind/field combinations the warehouse cannot represent.
func (h MetricHead) Validate() error {
	switch h.Kind {
	case KindRegular, KindRatio:
		if h.DissectionGroupID != 0 {
			return fmt.Errorf("%s head %d carries dissection group %d", h.Kind, h.HeadID, h.DissectionGroupID)
		}
	case KindDissection:
		if h.DissectionGroupID < DissectionPerShare || h.DissectionGroupID > DissectionQuarterlyGrowth {
			return fmt.Errorf("dissection head %d has invalid group %d", h.HeadID, h.DissectionGroupID)
		}
	default:
		return fmt.Errorf("unknown metric kind %q", h.Kind)
	}
	return nil
}

// Unit is a warehouse unit-of-measurement row, joined into retrieval
// projections so values carry their unit.
type Unit struct {
	UnitID int    `json:"unit_id"`
	Name   string `json:"name"`
}
