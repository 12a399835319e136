package models

// Company is one row of the warehouse company list. IndustryID is resolved
// through the sector/industry mapping at snapshot load time so resolvers
// never re-derive it.
type Company struct {
	CompanyID  int    `json:"company_id"`
	Name       string `json:"name"`
	Ticker     string `json:"ticker"`
	SectorID   int    `json:"sector_id"`
	IndustryID int    `json:"industry_id"`
	// FiscalYearEndMonth is 1-12; 12 means the fiscal year tracks the
	// calendar year. Drives company-aware resolution of "current fiscal
	// year" phrases.
	FiscalYearEndMonth int `json:"fiscal_year_end_month"`
}

// Sector is a warehouse sector name row.
type Sector struct {
	SectorID int    `json:"sector_id"`
	Name     string `json:"name"`
}

// Industry is a warehouse industry name row.
type Industry struct {
	IndustryID int    `json:"industry_id"`
	Name       string `json:"name"`
}

// IndustrySectorMapping links a sector to an industry. The mapping also
// scopes which metric heads are valid for companies in that sector, which is
// what the cascade's industry filter checks.
type IndustrySectorMapping struct {
	SectorID   int `json:"sector_id"`
	IndustryID int `json:"industry_id"`
}

// CompanyContext is a resolved company plus the sector/industry context the
// metric cascade filters against.
type CompanyContext struct {
	Company    Company `json:"company"`
	SectorID   int     `json:"sector_id"`
	IndustryID int     `json:"industry_id"`
}
