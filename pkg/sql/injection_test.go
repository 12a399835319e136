package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckParameterForInjection(t *testing.T) {
	tests := []struct {
		name      string
		paramName string
		value     any
		wantSQLi  bool
	}{
		{"plain ticker", "symbol", "UBL", false},
		{"company name with ampersand", "name", "Procter & Gamble", false},
		{"metric phrase", "metric", "depreciation and amortisation", false},
		{"date string", "period_end", "2021-03-31", false},
		{"integer untouched", "company_id", 123, false},
		{"float untouched", "fy", 2021.0, false},
		{"nil untouched", "consolidation_id", nil, false},
		{"classic tautology", "symbol", "' OR 1=1 --", true},
		{"stacked drop", "name", "x'; DROP TABLE tbl_companieslist; --", true},
		{"union probe", "metric", "revenue' UNION SELECT Password FROM users --", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CheckParameterForInjection(tt.paramName, tt.value)
			if !tt.wantSQLi {
				assert.Nil(t, result)
				return
			}
			require.NotNil(t, result)
			assert.True(t, result.IsSQLi)
			assert.Equal(t, tt.paramName, result.ParamName)
			assert.NotEmpty(t, result.Fingerprint)
		})
	}
}

func TestCheckQueryArgs(t *testing.T) {
	t.Run("clean args", func(t *testing.T) {
		q := &Query{
			SQL:  "SELECT COUNT(*) AS cnt FROM tbl_financialrawdata f WHERE f.CompanyID = $1 AND f.SubHeadID = $2",
			Args: []any{123, 21},
		}
		assert.Empty(t, CheckQueryArgs(q))
	})

	t.Run("hostile arg reported positionally", func(t *testing.T) {
		q := &Query{
			SQL:  "SELECT c.CompanyID FROM tbl_companieslist c WHERE c.Symbol = $1 OR c.CompanyName = $2",
			Args: []any{"UBL", "' OR 1=1 --"},
		}

		results := CheckQueryArgs(q)
		require.Len(t, results, 1)
		assert.Equal(t, "$2", results[0].ParamName)
		assert.True(t, results[0].IsSQLi)
	})
}
