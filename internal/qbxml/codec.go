// Package qbxml builds and interprets the XML dialect QuickBooks Desktop
// understands. Building is pure: identical inputs produce byte-identical
// output. All free text is escaped here, at the codec boundary, so callers
// never have to worry about reserved XML characters.
package qbxml

import (
	"encoding/xml"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ValidationError reports malformed structured input. XML generation itself
// cannot fail.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("qbxml: required field %s is missing", e.Field)
}

// InventoryAdjustmentRequest describes one quantity adjustment. A negative
// QuantityAdjustment means inventory was consumed; the codec preserves the
// caller's sign as-is.
type InventoryAdjustmentRequest struct {
	ItemRef            string
	QuantityAdjustment float64
	AccountRef         string
	Memo               string
	TxnDate            time.Time
}

// TimeTrackingRequest describes one time entry.
type TimeTrackingRequest struct {
	TxnDate        time.Time
	EmployeeRef    string
	CustomerRef    string
	ServiceItemRef string
	DurationHours  float64
	Notes          string
}

const header = `<?xml version="1.0" encoding="utf-8"?>
<?qbxml version="13.0"?>
`

// BuildInventoryAdjustment serializes an InventoryAdjustmentAddRq.
func BuildInventoryAdjustment(req InventoryAdjustmentRequest) (string, error) {
	if req.ItemRef == "" {
		return "", &ValidationError{Field: "ItemRef"}
	}
	if req.AccountRef == "" {
		return "", &ValidationError{Field: "AccountRef"}
	}

	var b strings.Builder
	b.WriteString(header)
	b.WriteString("<QBXML>\n<QBXMLMsgsRq onError=\"stopOnError\">\n")
	b.WriteString("<InventoryAdjustmentAddRq>\n<InventoryAdjustmentAdd>\n")
	fmt.Fprintf(&b, "<AccountRef><FullName>%s</FullName></AccountRef>\n", escape(req.AccountRef))
	fmt.Fprintf(&b, "<TxnDate>%s</TxnDate>\n", req.TxnDate.Format("2006-01-02"))
	if req.Memo != "" {
		fmt.Fprintf(&b, "<Memo>%s</Memo>\n", escape(req.Memo))
	}
	b.WriteString("<InventoryAdjustmentLineAdd>\n")
	fmt.Fprintf(&b, "<ItemRef><FullName>%s</FullName></ItemRef>\n", escape(req.ItemRef))
	fmt.Fprintf(&b, "<QuantityAdjustment><QuantityDifference>%s</QuantityDifference></QuantityAdjustment>\n",
		strconv.FormatFloat(req.QuantityAdjustment, 'f', -1, 64))
	b.WriteString("</InventoryAdjustmentLineAdd>\n")
	b.WriteString("</InventoryAdjustmentAdd>\n</InventoryAdjustmentAddRq>\n")
	b.WriteString("</QBXMLMsgsRq>\n</QBXML>")
	return b.String(), nil
}

// BuildTimeTracking serializes a TimeTrackingAddRq.
func BuildTimeTracking(req TimeTrackingRequest) (string, error) {
	if req.EmployeeRef == "" {
		return "", &ValidationError{Field: "EmployeeRef"}
	}
	if req.CustomerRef == "" {
		return "", &ValidationError{Field: "CustomerRef"}
	}

	var b strings.Builder
	b.WriteString(header)
	b.WriteString("<QBXML>\n<QBXMLMsgsRq onError=\"stopOnError\">\n")
	b.WriteString("<TimeTrackingAddRq>\n<TimeTrackingAdd>\n")
	fmt.Fprintf(&b, "<TxnDate>%s</TxnDate>\n", req.TxnDate.Format("2006-01-02"))
	fmt.Fprintf(&b, "<EntityRef><FullName>%s</FullName></EntityRef>\n", escape(req.EmployeeRef))
	fmt.Fprintf(&b, "<CustomerRef><FullName>%s</FullName></CustomerRef>\n", escape(req.CustomerRef))
	if req.ServiceItemRef != "" {
		fmt.Fprintf(&b, "<ItemServiceRef><FullName>%s</FullName></ItemServiceRef>\n", escape(req.ServiceItemRef))
	}
	fmt.Fprintf(&b, "<Duration>%s</Duration>\n", FormatDuration(req.DurationHours))
	if req.Notes != "" {
		fmt.Fprintf(&b, "<Notes>%s</Notes>\n", escape(req.Notes))
	}
	b.WriteString("</TimeTrackingAdd>\n</TimeTrackingAddRq>\n")
	b.WriteString("</QBXMLMsgsRq>\n</QBXML>")
	return b.String(), nil
}

// BuildInvoiceQuery serializes an InvoiceQueryRq for one transaction id.
func BuildInvoiceQuery(txnID string) (string, error) {
	if txnID == "" {
		return "", &ValidationError{Field: "TxnID"}
	}

	var b strings.Builder
	b.WriteString(header)
	b.WriteString("<QBXML>\n<QBXMLMsgsRq onError=\"stopOnError\">\n")
	fmt.Fprintf(&b, "<InvoiceQueryRq>\n<TxnID>%s</TxnID>\n<IncludeLineItems>true</IncludeLineItems>\n</InvoiceQueryRq>\n", escape(txnID))
	b.WriteString("</QBXMLMsgsRq>\n</QBXML>")
	return b.String(), nil
}

// FormatDuration encodes a floating-point hour count as the ISO-8601-like
// token QuickBooks expects: whole hours floored, remaining minutes rounded.
func FormatDuration(hours float64) string {
	if hours < 0 {
		hours = 0
	}
	h := int(math.Floor(hours))
	m := int(math.Round((hours - float64(h)) * 60))
	if m == 60 {
		h++
		m = 0
	}
	return fmt.Sprintf("PT%dH%dM", h, m)
}

// ResponseStatus is the interpreted outcome of a qbXML response.
type ResponseStatus struct {
	Code     string
	Message  string
	Severity string
	Success  bool
}

// ParseResponseStatus extracts statusCode/statusMessage from the first
// response element. QuickBooks reports success as statusCode "0".
func ParseResponseStatus(raw string) (ResponseStatus, error) {
	decoder := xml.NewDecoder(strings.NewReader(raw))
	for {
		tok, err := decoder.Token()
		if err != nil {
			return ResponseStatus{}, fmt.Errorf("qbxml: no response status element found: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if !strings.HasSuffix(start.Name.Local, "Rs") {
			continue
		}

		// The QBXMLMsgsRs wrapper also ends in "Rs" but carries no status
		// attributes; keep scanning until an element reports a statusCode.
		var status ResponseStatus
		found := false
		for _, attr := range start.Attr {
			switch attr.Name.Local {
			case "statusCode":
				status.Code = attr.Value
				found = true
			case "statusMessage":
				status.Message = attr.Value
			case "statusSeverity":
				status.Severity = attr.Value
			}
		}
		if !found {
			continue
		}
		status.Success = status.Code == "0"
		return status, nil
	}
}

var escaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

func escape(s string) string {
	return escaper.Replace(s)
}
