package domain

import "time"

// Location identifies the store a duplicate was found in.
type Location string

const (
	LocationNone      Location = ""
	LocationMainTable Location = "main_table"
	LocationLegacy    Location = "as400"
)

// DuplicateCheckResult is the outcome of checking one OrderIdentity.
// Location is set if and only if IsDuplicate is true.
type DuplicateCheckResult struct {
	IsDuplicate    bool           `json:"is_duplicate"`
	Location       Location       `json:"location,omitempty"`
	Reason         string         `json:"reason,omitempty"`
	ExistingRecord any            `json:"existing_record,omitempty"`
	Details        map[string]any `json:"details,omitempty"`
}

// NotDuplicate is the clear result.
func NotDuplicate() DuplicateCheckResult {
	return DuplicateCheckResult{}
}

// FailOpen is the result for a check that could not complete. The order is
// treated as new and the reason is surfaced.
func FailOpen(reason string) DuplicateCheckResult {
	return DuplicateCheckResult{Reason: reason}
}

// FoundIn builds a positive result for the given store.
func FoundIn(loc Location, reason string, existing any, details map[string]any) DuplicateCheckResult {
	return DuplicateCheckResult{
		IsDuplicate:    true,
		Location:       loc,
		Reason:         reason,
		ExistingRecord: existing,
		Details:        details,
	}
}

// CheckedOrder pairs an identity with its duplicate check outcome.
type CheckedOrder struct {
	Identity OrderIdentity        `json:"identity"`
	Result   DuplicateCheckResult `json:"duplicate_check"`
}

// MainStoreQuery selects main-store orders by order number and merchant
// within an inclusive transaction-time range. OrderItemNo filters only when
// set.
type MainStoreQuery struct {
	OrderNo      string
	MerchantCode string
	From         time.Time
	To           time.Time
	OrderItemNo  string
}
