package domain

import (
	"slices"
)

// IndicatorKind names one category of extracted fraud indicator.
type IndicatorKind string

const (
	KindBankAccount IndicatorKind = "bank_accounts"
	KindUPI         IndicatorKind = "upi_ids"
	KindIFSC        IndicatorKind = "ifsc_codes"
	KindPhone       IndicatorKind = "phone_numbers"
	KindURL         IndicatorKind = "phishing_urls"
	KindWallet      IndicatorKind = "wallet_addresses"
)

// IndicatorKinds lists every kind in a stable order.
var IndicatorKinds = []IndicatorKind{
	KindBankAccount,
	KindUPI,
	KindIFSC,
	KindPhone,
	KindURL,
	KindWallet,
}

// ExtractedIntelligence holds canonical indicators grouped by kind.
// Each slice is sorted and free of duplicates.
type ExtractedIntelligence struct {
	BankAccounts    []string `json:"bank_accounts"`
	UPIIDs          []string `json:"upi_ids"`
	IFSCCodes       []string `json:"ifsc_codes"`
	PhoneNumbers    []string `json:"phone_numbers"`
	PhishingURLs    []string `json:"phishing_urls"`
	WalletAddresses []string `json:"wallet_addresses"`
}

// NewExtractedIntelligence returns a value with every kind set to an empty,
// non-nil slice so it encodes as [] rather than null.
func NewExtractedIntelligence() ExtractedIntelligence {
	return ExtractedIntelligence{
		BankAccounts:    []string{},
		UPIIDs:          []string{},
		IFSCCodes:       []string{},
		PhoneNumbers:    []string{},
		PhishingURLs:    []string{},
		WalletAddresses: []string{},
	}
}

// Values returns the indicators of one kind.
func (e *ExtractedIntelligence) Values(kind IndicatorKind) []string {
	if p := e.field(kind); p != nil {
		return *p
	}
	return nil
}

// Set replaces the indicators of one kind with a sorted, deduplicated copy.
func (e *ExtractedIntelligence) Set(kind IndicatorKind, values []string) {
	if p := e.field(kind); p != nil {
		*p = SortedUnique(values)
	}
}

// IsEmpty reports whether no indicator of any kind is present.
func (e ExtractedIntelligence) IsEmpty() bool {
	for _, kind := range IndicatorKinds {
		if len(e.Values(kind)) > 0 {
			return false
		}
	}
	return true
}

// HasPaymentIdentifiers reports whether bank, UPI or phone identifiers are present.
func (e ExtractedIntelligence) HasPaymentIdentifiers() bool {
	return len(e.BankAccounts) > 0 || len(e.UPIIDs) > 0 || len(e.PhoneNumbers) > 0
}

func (e *ExtractedIntelligence) field(kind IndicatorKind) *[]string {
	switch kind {
	case KindBankAccount:
		return &e.BankAccounts
	case KindUPI:
		return &e.UPIIDs
	case KindIFSC:
		return &e.IFSCCodes
	case KindPhone:
		return &e.PhoneNumbers
	case KindURL:
		return &e.PhishingURLs
	case KindWallet:
		return &e.WalletAddresses
	}
	return nil
}

// SortedUnique returns a sorted copy of values without duplicates or empty strings.
func SortedUnique(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
