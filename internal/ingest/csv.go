package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/chudeemeke/kite-pfm/internal/common"
	"github.com/chudeemeke/kite-pfm/internal/model"
)

// csvDateFormats are tried in order when parsing the date column.
var csvDateFormats = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"01/02/2006",
	"02.01.2006",
}

// ParseCSV reads a header-driven CSV of transactions. Required columns are
// date, amount, and description; merchant, category, currency, notes, and
// tags (pipe-separated) are picked up when present. Column matching is
// case-insensitive.
func ParseCSV(r io.Reader) ([]model.Transaction, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, &common.ImportFormatError{Reason: "CSV file has no header row"}
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"date", "amount", "description"} {
		if _, ok := cols[required]; !ok {
			return nil, &common.ImportFormatError{
				Reason: fmt.Sprintf("CSV header is missing the %q column", required),
			}
		}
	}

	field := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var txns []model.Transaction
	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, &common.ImportFormatError{Reason: fmt.Sprintf("CSV line %d is malformed: %v", line, err)}
		}

		date, err := parseCSVDate(field(row, "date"))
		if err != nil {
			return nil, &common.ImportFormatError{Reason: fmt.Sprintf("CSV line %d: %v", line, err)}
		}
		amount, err := strconv.ParseFloat(field(row, "amount"), 64)
		if err != nil {
			return nil, &common.ImportFormatError{
				Reason: fmt.Sprintf("CSV line %d has invalid amount %q", line, field(row, "amount")),
			}
		}

		txn := model.Transaction{
			Date:        date,
			Amount:      amount,
			Description: field(row, "description"),
			Merchant:    field(row, "merchant"),
			CategoryID:  field(row, "category"),
			Currency:    strings.ToUpper(field(row, "currency")),
			Notes:       field(row, "notes"),
		}
		if txn.Currency == "" {
			txn.Currency = "USD"
		}
		if tags := field(row, "tags"); tags != "" {
			for _, tag := range strings.Split(tags, "|") {
				if tag = strings.TrimSpace(tag); tag != "" {
					txn.Tags = append(txn.Tags, tag)
				}
			}
		}
		txns = append(txns, txn)
	}
	return txns, nil
}

func parseCSVDate(value string) (time.Time, error) {
	for _, layout := range csvDateFormats {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", value)
}
