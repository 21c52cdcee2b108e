package holdings

import (
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stockmonitor/monthend/internal/contracts"
)

// Upload error codes. Stable: clients key display text off these.
const (
	ErrInvalidSymbol    = "INVALID_SYMBOL"
	ErrNegativeQuantity = "NEGATIVE_QUANTITY"
	ErrInvalidQuantity  = "INVALID_QUANTITY"
	ErrMissingData      = "MISSING_DATA"
	ErrInvalidCurrency  = "INVALID_CURRENCY"
	ErrInvalidCostBasis = "INVALID_COST_BASIS"
)

var (
	symbolRe   = regexp.MustCompile(`^[A-Z0-9\.\-]{1,10}$`)
	currencyRe = regexp.MustCompile(`^[A-Z]{3}$`)
)

// RowError is one validation failure tied to a CSV row and column.
type RowError struct {
	Row     int    `json:"row"` // 1-based data row as the user sees it (header is row 1)
	Column  string `json:"column"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d, %s: %s (%s)", e.Row, e.Column, e.Message, e.Code)
}

// UploadResult carries the parsed holdings and all per-row errors. A
// single bad row does not block the rest of the file from parsing; the
// caller decides whether to persist anything when Errors is non-empty.
type UploadResult struct {
	Holdings []*contracts.Holding `json:"holdings"`
	Errors   []RowError           `json:"errors"`
}

// expected CSV header: symbol,quantity,cost_basis,currency[,acquisition_date]
const expectedColumns = 4

// ParseUpload reads a holdings CSV and validates every row. Row numbers
// in errors are offset by the header line, so the first data row is 2.
func ParseUpload(portfolioID string, r io.Reader) (*UploadResult, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty upload")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	if len(header) < expectedColumns {
		return nil, fmt.Errorf("expected at least %d columns (symbol, quantity, cost_basis, currency), got %d", expectedColumns, len(header))
	}

	result := &UploadResult{}
	now := time.Now().UTC()

	for rowNum := 2; ; rowNum++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			result.Errors = append(result.Errors, RowError{
				Row: rowNum, Column: "", Code: ErrMissingData,
				Message: fmt.Sprintf("unreadable row: %v", err),
			})
			continue
		}

		h, rowErrs := parseRow(portfolioID, rowNum, record, now)
		if len(rowErrs) > 0 {
			result.Errors = append(result.Errors, rowErrs...)
			continue
		}
		result.Holdings = append(result.Holdings, h)
	}

	return result, nil
}

func parseRow(portfolioID string, rowNum int, record []string, now time.Time) (*contracts.Holding, []RowError) {
	var errs []RowError

	field := func(i int) string {
		if i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	symbol := strings.ToUpper(field(0))
	quantityStr := field(1)
	costBasisStr := field(2)
	currency := strings.ToUpper(field(3))
	acquiredStr := field(4)

	if symbol == "" || quantityStr == "" || costBasisStr == "" || currency == "" {
		errs = append(errs, RowError{
			Row: rowNum, Column: firstMissingColumn(symbol, quantityStr, costBasisStr, currency),
			Code: ErrMissingData, Message: "required field is empty",
		})
		return nil, errs
	}

	if !symbolRe.MatchString(symbol) {
		errs = append(errs, RowError{
			Row: rowNum, Column: "symbol", Code: ErrInvalidSymbol,
			Message: fmt.Sprintf("%q is not a valid symbol", symbol),
		})
	}

	quantity, err := strconv.ParseFloat(quantityStr, 64)
	switch {
	case err != nil:
		errs = append(errs, RowError{
			Row: rowNum, Column: "quantity", Code: ErrInvalidQuantity,
			Message: fmt.Sprintf("%q is not a number", quantityStr),
		})
	case quantity <= 0:
		errs = append(errs, RowError{
			Row: rowNum, Column: "quantity", Code: ErrNegativeQuantity,
			Message: "quantity must be positive",
		})
	}

	costBasis, err := strconv.ParseFloat(costBasisStr, 64)
	if err != nil || costBasis < 0 {
		errs = append(errs, RowError{
			Row: rowNum, Column: "cost_basis", Code: ErrInvalidCostBasis,
			Message: fmt.Sprintf("%q is not a valid cost basis", costBasisStr),
		})
	}

	if !currencyRe.MatchString(currency) {
		errs = append(errs, RowError{
			Row: rowNum, Column: "currency", Code: ErrInvalidCurrency,
			Message: fmt.Sprintf("%q is not an ISO currency code", currency),
		})
	}

	acquired := now
	if acquiredStr != "" {
		d, err := time.Parse("2006-01-02", acquiredStr)
		if err != nil {
			errs = append(errs, RowError{
				Row: rowNum, Column: "acquisition_date", Code: ErrMissingData,
				Message: fmt.Sprintf("%q is not a date (want YYYY-MM-DD)", acquiredStr),
			})
		} else {
			acquired = d
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}

	h := &contracts.Holding{
		ID:              uuid.NewString(),
		PortfolioID:     portfolioID,
		Symbol:          symbol,
		Quantity:        quantity,
		CostBasis:       costBasis,
		Currency:        currency,
		AcquisitionDate: acquired,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if quantity > 0 {
		h.CostBasisPerShare = costBasis / quantity
	}
	return h, nil
}

func firstMissingColumn(symbol, quantity, costBasis, currency string) string {
	switch {
	case symbol == "":
		return "symbol"
	case quantity == "":
		return "quantity"
	case costBasis == "":
		return "cost_basis"
	default:
		return "currency"
	}
}
