// Package ingest parses external transaction files (OFX/QFX bank exports
// and CSV) into transactions ready for the import pipeline.
package ingest

import (
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/chudeemeke/kite-pfm/internal/common"
	"github.com/chudeemeke/kite-pfm/internal/model"

	"github.com/aclindsa/ofxgo"
)

var (
	severityRe = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	openTagRe  = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
)

// preprocessOFX repairs formatting quirks common in bank-generated SGML
// files: leading whitespace, mixed-case SEVERITY values, and opening tags
// missing their closing bracket.
func preprocessOFX(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")
	content = severityRe.ReplaceAllStringFunc(content, strings.ToUpper)
	return openTagRe.ReplaceAllString(content, "$1>")
}

// ParseOFX reads an OFX/QFX file and returns its transactions. Amounts keep
// the OFX sign convention, which matches ours: debits negative, credits
// positive. The bank's account id lands in Metadata["sourceAccount"]; the
// caller maps it to a stored account before import.
func ParseOFX(r io.Reader) ([]model.Transaction, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX file: %w", err)
	}

	resp, err := ofxgo.ParseResponse(strings.NewReader(preprocessOFX(string(content))))
	if err != nil {
		return nil, &common.ImportFormatError{Reason: fmt.Sprintf("not a valid OFX file: %v", err)}
	}

	var txns []model.Transaction
	for _, msg := range resp.Bank {
		stmt, ok := msg.(*ofxgo.StatementResponse)
		if !ok || stmt.BankTranList == nil {
			continue
		}
		source := string(stmt.BankAcctFrom.AcctID)
		currency := currencyOf(stmt.CurDef)
		for _, ofxTxn := range stmt.BankTranList.Transactions {
			txns = append(txns, convertOFX(ofxTxn, source, currency))
		}
	}
	for _, msg := range resp.CreditCard {
		stmt, ok := msg.(*ofxgo.CCStatementResponse)
		if !ok || stmt.BankTranList == nil {
			continue
		}
		source := string(stmt.CCAcctFrom.AcctID)
		currency := currencyOf(stmt.CurDef)
		for _, ofxTxn := range stmt.BankTranList.Transactions {
			txns = append(txns, convertOFX(ofxTxn, source, currency))
		}
	}

	slog.Info("parsed OFX file", "transactions", len(txns))
	return txns, nil
}

func currencyOf(sym ofxgo.CurrSymbol) string {
	if s := sym.String(); len(s) == 3 {
		return s
	}
	return "USD"
}

func convertOFX(ofxTxn ofxgo.Transaction, sourceAccount, currency string) model.Transaction {
	amount, _ := ofxTxn.TrnAmt.Float64()

	txn := model.Transaction{
		Date:        ofxTxn.DtPosted.Time,
		Description: strings.TrimSpace(string(ofxTxn.Name)),
		Merchant:    merchantName(ofxTxn),
		Amount:      amount,
		Currency:    currency,
		Metadata: map[string]any{
			"sourceAccount": sourceAccount,
			"ofxType":       fmt.Sprintf("%v", ofxTxn.TrnType),
		},
	}
	if ofxTxn.FiTID != "" {
		txn.Metadata["fitId"] = string(ofxTxn.FiTID)
	}
	if ofxTxn.CheckNum != "" {
		txn.Metadata["checkNumber"] = string(ofxTxn.CheckNum)
	}
	if txn.Description == "" {
		txn.Description = txn.Merchant
	}

	// Transfers between own accounts are flagged so searches can exclude
	// them from spending views.
	if fmt.Sprintf("%v", ofxTxn.TrnType) == "XFER" {
		txn.Metadata["transfer"] = true
	}
	return txn
}

// noisePrefixes are processor boilerplate that banks prepend to the payee.
var noisePrefixes = []string{
	"POS PURCHASE ",
	"PURCHASE AUTHORIZED ON ",
	"DEBIT CARD PURCHASE ",
	"ACH DEBIT ",
	"CHECK CARD ",
	"VISA PURCHASE ",
	"MC PURCHASE ",
	"DEBIT PURCHASE ",
}

// merchantName extracts the cleanest available merchant string: the PAYEE
// record when present, otherwise NAME (or MEMO when NAME is generic) with
// processor noise stripped.
func merchantName(txn ofxgo.Transaction) string {
	if txn.Payee != nil && txn.Payee.Name != "" {
		return string(txn.Payee.Name)
	}

	name := strings.TrimSpace(string(txn.Name))
	if txn.Memo != "" && genericPayee(name) {
		name = strings.TrimSpace(string(txn.Memo))
	}

	upper := strings.ToUpper(name)
	for _, prefix := range noisePrefixes {
		if strings.HasPrefix(upper, prefix) {
			name = strings.TrimSpace(name[len(prefix):])
			break
		}
	}

	// Strip a leading MM/DD stamp.
	if len(name) > 6 && name[2] == '/' && name[5] == ' ' {
		name = strings.TrimSpace(name[6:])
	}
	return name
}

func genericPayee(name string) bool {
	switch strings.ToUpper(name) {
	case "DEBIT", "CREDIT", "PURCHASE", "PAYMENT", "POS TRANSACTION", "CARD PURCHASE":
		return true
	}
	return false
}
