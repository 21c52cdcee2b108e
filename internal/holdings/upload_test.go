package holdings

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUploadValidFile(t *testing.T) {
	csv := `symbol,quantity,cost_basis,currency,acquisition_date
AAPL,100,15000.50,USD,2024-03-01
BRK.B,10,4100,USD,
msft,5,2000,usd,2025-01-15
`
	res, err := ParseUpload("p1", strings.NewReader(csv))
	require.NoError(t, err)
	require.Empty(t, res.Errors)
	require.Len(t, res.Holdings, 3)

	aapl := res.Holdings[0]
	assert.Equal(t, "AAPL", aapl.Symbol)
	assert.Equal(t, 100.0, aapl.Quantity)
	assert.Equal(t, 15000.50, aapl.CostBasis)
	assert.InDelta(t, 150.005, aapl.CostBasisPerShare, 1e-9)
	assert.Equal(t, "p1", aapl.PortfolioID)

	assert.Equal(t, "BRK.B", res.Holdings[1].Symbol, "dotted symbols accepted")
	assert.Equal(t, "MSFT", res.Holdings[2].Symbol, "symbol and currency upcased")
	assert.Equal(t, "USD", res.Holdings[2].Currency)
}

func TestParseUploadRowErrors(t *testing.T) {
	csv := `symbol,quantity,cost_basis,currency
TOOLONGSYMBOL,10,100,USD
AAPL,-5,100,USD
AAPL,abc,100,USD
AAPL,10,,USD
AAPL,10,100,usdollar
AAPL,10,-1,USD
`
	res, err := ParseUpload("p1", strings.NewReader(csv))
	require.NoError(t, err)
	assert.Empty(t, res.Holdings)

	codes := map[int]string{}
	for _, e := range res.Errors {
		codes[e.Row] = e.Code
	}

	// header is row 1, so the first data row reports as row 2
	assert.Equal(t, ErrInvalidSymbol, codes[2])
	assert.Equal(t, ErrNegativeQuantity, codes[3])
	assert.Equal(t, ErrInvalidQuantity, codes[4])
	assert.Equal(t, ErrMissingData, codes[5])
	assert.Equal(t, ErrInvalidCurrency, codes[6])
	assert.Equal(t, ErrInvalidCostBasis, codes[7])
}

func TestParseUploadBadRowsDoNotBlockGoodRows(t *testing.T) {
	csv := `symbol,quantity,cost_basis,currency
AAPL,100,15000,USD
???,10,100,USD
MSFT,50,10000,USD
`
	res, err := ParseUpload("p1", strings.NewReader(csv))
	require.NoError(t, err)
	assert.Len(t, res.Holdings, 2)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 3, res.Errors[0].Row)
	assert.Equal(t, "symbol", res.Errors[0].Column)
}

func TestParseUploadRejectsEmptyAndShortFiles(t *testing.T) {
	_, err := ParseUpload("p1", strings.NewReader(""))
	assert.Error(t, err)

	_, err = ParseUpload("p1", strings.NewReader("symbol,quantity\n"))
	assert.Error(t, err)
}

func TestParseUploadZeroQuantityRejected(t *testing.T) {
	csv := "symbol,quantity,cost_basis,currency\nAAPL,0,100,USD\n"
	res, err := ParseUpload("p1", strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, ErrNegativeQuantity, res.Errors[0].Code)
}
