package gateway

import (
	"encoding/json"

	"github.com/profitpulse/query-gateway/internal/factstore"
)

// Status is the terminal state of one question
type Status string

const (
	StatusSuccess  Status = "success"
	StatusRejected Status = "rejected"
	StatusFailed   Status = "failed"
)

// DefaultExplanation is returned on success when the translator gave none
const DefaultExplanation = "Here is the data I found based on your query."

// Outcome is the only value returned to the caller. Exactly one of the
// success fields (Data, Explanation) or the failure fields (Error,
// ErrorCode, Category) is populated, depending on Status.
type Outcome struct {
	Status      Status
	SQL         string
	Data        []factstore.Row
	RowCount    int
	Truncated   bool
	Explanation string
	Error       string
	ErrorCode   string
	Category    string
	Cached      bool

	// ExecutedSQL is the tenant-scoped statement the fact store ran. It is
	// kept for the audit trail and never serialized to the caller.
	ExecutedSQL string
}

// Succeeded reports whether the question produced data
func (o Outcome) Succeeded() bool {
	return o.Status == StatusSuccess
}

type outcomeJSON struct {
	Status      Status           `json:"status"`
	SQL         string           `json:"sql"`
	Data        *[]factstore.Row `json:"data,omitempty"`
	RowCount    *int             `json:"row_count,omitempty"`
	Truncated   bool             `json:"truncated,omitempty"`
	Explanation string           `json:"explanation,omitempty"`
	Error       string           `json:"error,omitempty"`
	ErrorCode   string           `json:"error_code,omitempty"`
	Category    string           `json:"category,omitempty"`
	Cached      bool             `json:"cached"`
}

// MarshalJSON renders sql always, data and explanation only on success and
// the error fields only on rejection or failure.
func (o Outcome) MarshalJSON() ([]byte, error) {
	out := outcomeJSON{
		Status: o.Status,
		SQL:    o.SQL,
		Cached: o.Cached,
	}

	if o.Status == StatusSuccess {
		data := o.Data
		if data == nil {
			data = []factstore.Row{}
		}
		count := o.RowCount
		out.Data = &data
		out.RowCount = &count
		out.Truncated = o.Truncated
		out.Explanation = o.Explanation
	} else {
		out.Error = o.Error
		out.ErrorCode = o.ErrorCode
		out.Category = o.Category
	}

	return json.Marshal(out)
}

// UnmarshalJSON restores an outcome rendered by MarshalJSON
func (o *Outcome) UnmarshalJSON(b []byte) error {
	var in outcomeJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}

	*o = Outcome{
		Status:      in.Status,
		SQL:         in.SQL,
		Truncated:   in.Truncated,
		Explanation: in.Explanation,
		Error:       in.Error,
		ErrorCode:   in.ErrorCode,
		Category:    in.Category,
		Cached:      in.Cached,
	}
	if in.Data != nil {
		o.Data = *in.Data
	}
	if in.RowCount != nil {
		o.RowCount = *in.RowCount
	}
	return nil
}
