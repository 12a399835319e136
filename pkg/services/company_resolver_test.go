package services

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/finsight-hq/finsight-engine/pkg/apperrors"
	"github.com/finsight-hq/finsight-engine/pkg/metadata"
)

func newTestCompanyResolver(t *testing.T) CompanyResolver {
	t.Helper()
	return NewCompanyResolver(testStore(), 0, zap.NewNop())
}

func TestCompanyResolverTickerBeatsName(t *testing.T) {
	r := newTestCompanyResolver(t)

	tests := []struct {
		phrase    string
		companyID int
	}{
		{"UBL", companyUBL},
		{"ubl", companyUBL},
		{"  Ubl? ", companyUBL},
		{"MTL", companyMTL},
	}
	for _, tt := range tests {
		t.Run(tt.phrase, func(t *testing.T) {
			ctx, err := r.Resolve(tt.phrase)
			require.NoError(t, err)
			assert.Equal(t, tt.companyID, ctx.Company.CompanyID)
		})
	}
}

func TestCompanyResolverExactName(t *testing.T) {
	r := newTestCompanyResolver(t)

	ctx, err := r.Resolve("United Bank Limited")
	require.NoError(t, err)
	assert.Equal(t, companyUBL, ctx.Company.CompanyID)
	assert.Equal(t, 10, ctx.SectorID)
	assert.Equal(t, 100, ctx.IndustryID)
}

func TestCompanyResolverFuzzySingleWinner(t *testing.T) {
	r := newTestCompanyResolver(t)

	ctx, err := r.Resolve("millat tractors")
	require.NoError(t, err)
	assert.Equal(t, companyMTL, ctx.Company.CompanyID)

	ctx, err = r.Resolve("nestle")
	require.NoError(t, err)
	assert.Equal(t, companyNestle, ctx.Company.CompanyID)
}

func TestCompanyResolverAmbiguousSiblings(t *testing.T) {
	r := newTestCompanyResolver(t)

	_, err := r.Resolve("United Bank")
	require.Error(t, err)

	var ambErr *apperrors.AmbiguousCompanyError
	require.ErrorAs(t, err, &ambErr)
	assert.True(t, errors.Is(err, apperrors.ErrAmbiguousCompany))
	require.GreaterOrEqual(t, len(ambErr.Candidates), 2)

	names := []string{ambErr.Candidates[0].Name, ambErr.Candidates[1].Name}
	assert.Contains(t, names, "United Bank Limited")
	assert.Contains(t, names, "United Bank Holdings")
}

// Ambiguity is about how many companies clear the threshold, not how far
// apart they score: a clear leader is still not silently accepted.
func TestCompanyResolverAmbiguousClearLeader(t *testing.T) {
	r := newTestCompanyResolver(t)

	// "Askari Bank Limited" outscores "Askari Banking Group Holdings" by a
	// wide margin, but both clear the threshold.
	_, err := r.Resolve("Askari Bank")
	require.Error(t, err)

	var ambErr *apperrors.AmbiguousCompanyError
	require.ErrorAs(t, err, &ambErr)
	require.Len(t, ambErr.Candidates, 2)
	assert.Equal(t, "Askari Bank Limited", ambErr.Candidates[0].Name)
	assert.Equal(t, "Askari Banking Group Holdings", ambErr.Candidates[1].Name)
	assert.Greater(t, ambErr.Candidates[0].Score, ambErr.Candidates[1].Score)
}

func TestCompanyResolverNotFound(t *testing.T) {
	r := newTestCompanyResolver(t)

	_, err := r.Resolve("Zorblatt Industries")
	require.Error(t, err)

	var nfErr *apperrors.CompanyNotFoundError
	require.ErrorAs(t, err, &nfErr)
	assert.True(t, apperrors.IsRecoverable(err))
	assert.Empty(t, nfErr.Suggestions)
}

func TestCompanyResolverBelowThresholdSuggests(t *testing.T) {
	r := newTestCompanyResolver(t)

	_, err := r.Resolve("bank")
	require.Error(t, err)

	var nfErr *apperrors.CompanyNotFoundError
	require.ErrorAs(t, err, &nfErr)
	require.NotEmpty(t, nfErr.Suggestions)

	names := make([]string, 0, len(nfErr.Suggestions))
	for _, s := range nfErr.Suggestions {
		names = append(names, s.Name)
	}
	assert.Contains(t, names, "United Bank Limited")
}

func TestCompanyResolverEmptyPhrase(t *testing.T) {
	r := newTestCompanyResolver(t)

	_, err := r.Resolve("   ")
	var nfErr *apperrors.CompanyNotFoundError
	require.ErrorAs(t, err, &nfErr)
}

func TestCompanyResolverNoSnapshot(t *testing.T) {
	r := NewCompanyResolver(metadata.NewStaticStore(nil), 0, zap.NewNop())

	_, err := r.Resolve("UBL")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrMetadataLoad))
	assert.False(t, apperrors.IsRecoverable(err))
}

func TestCompanyResolverSearch(t *testing.T) {
	r := newTestCompanyResolver(t)

	// Empty query lists snapshot order.
	all := r.Search("", 2)
	require.Len(t, all, 2)
	assert.Equal(t, companyUBL, all[0].CompanyID)
	assert.Equal(t, companyMTL, all[1].CompanyID)
	assert.Zero(t, all[0].Score)

	hits := r.Search("united", 10)
	require.Len(t, hits, 2)
	assert.Equal(t, companyUBL, hits[0].CompanyID)
	assert.Equal(t, companyUBH, hits[1].CompanyID)
	for _, h := range hits {
		assert.Greater(t, h.Score, 0.0)
	}
}
