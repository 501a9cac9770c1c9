package acoustic

import (
	"encoding/xml"
	"strings"

	"github.com/Guizzs26/ctms-sync/internal/mapper"
)

type envelope struct {
	XMLName xml.Name `xml:"Envelope"`
	Body    body     `xml:"Body"`
}

type body struct {
	AddRecipient                *addRecipient                `xml:"AddRecipient,omitempty"`
	InsertUpdateRelationalTable *insertUpdateRelationalTable `xml:"InsertUpdateRelationalTable,omitempty"`
}

type addRecipient struct {
	ListID        int64       `xml:"LIST_ID"`
	CreatedFrom   int         `xml:"CREATED_FROM"`
	UpdateIfFound string      `xml:"UPDATE_IF_FOUND"`
	AllowHTML     bool        `xml:"ALLOW_HTML"`
	SyncFields    []nameValue `xml:"SYNC_FIELDS>SYNC_FIELD"`
	Columns       []nameValue `xml:"COLUMN"`
}

type nameValue struct {
	Name  string `xml:"NAME"`
	Value string `xml:"VALUE"`
}

type insertUpdateRelationalTable struct {
	TableID int64 `xml:"TABLE_ID"`
	Rows    []row `xml:"ROWS>ROW"`
}

type row struct {
	Columns []rowColumn `xml:"COLUMN"`
}

type rowColumn struct {
	Name  string `xml:"name,attr"`
	Value string `xml:",cdata"`
}

// createdFromAPI is the CREATED_FROM code for recipients added through the API.
const createdFromAPI = 3

func addRecipientEnvelope(listID int64, rec mapper.Record) ([]byte, error) {
	cols := rec.SortedColumns()
	req := &addRecipient{
		ListID:        listID,
		CreatedFrom:   createdFromAPI,
		UpdateIfFound: "TRUE",
		SyncFields:    []nameValue{{Name: "email_id", Value: rec.EmailID.String()}},
		Columns:       make([]nameValue, 0, len(cols)),
	}
	for _, c := range cols {
		req.Columns = append(req.Columns, nameValue{Name: c.Name, Value: c.Value})
	}
	return xml.MarshalIndent(envelope{Body: body{AddRecipient: req}}, "", "  ")
}

func newsletterEnvelope(tableID int64, rows []mapper.NewsletterRow) ([]byte, error) {
	req := &insertUpdateRelationalTable{TableID: tableID, Rows: make([]row, 0, len(rows))}
	for _, r := range rows {
		cols := r.Columns()
		out := row{Columns: make([]rowColumn, 0, len(cols))}
		for _, c := range cols {
			out.Columns = append(out.Columns, rowColumn{Name: c.Name, Value: c.Value})
		}
		req.Rows = append(req.Rows, out)
	}
	return xml.MarshalIndent(envelope{Body: body{InsertUpdateRelationalTable: req}}, "", "  ")
}

type response struct {
	XMLName xml.Name `xml:"Envelope"`
	Body    struct {
		Result struct {
			Success  string    `xml:"SUCCESS"`
			Failures []failure `xml:"FAILURES>FAILURE"`
		} `xml:"RESULT"`
		Fault *struct {
			FaultString string `xml:"FaultString"`
		} `xml:"Fault"`
	} `xml:"Body"`
}

type failure struct {
	Type        string `xml:"failure_type,attr"`
	Description string `xml:"description,attr"`
}

// problem returns the platform's complaint, or "" for a successful call.
func (r response) problem() string {
	if f := r.Body.Fault; f != nil {
		if f.FaultString == "" {
			return "fault without description"
		}
		return f.FaultString
	}
	if len(r.Body.Result.Failures) > 0 {
		msgs := make([]string, 0, len(r.Body.Result.Failures))
		for _, f := range r.Body.Result.Failures {
			msgs = append(msgs, f.Type+": "+f.Description)
		}
		return strings.Join(msgs, "; ")
	}
	if !strings.EqualFold(strings.TrimSpace(r.Body.Result.Success), "true") {
		return "request not successful"
	}
	return ""
}
