package message

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"os"
	"time"

	mxj "github.com/clbanning/mxj/v2"

	"github.com/payflowio/payflow/schema"
)

// Parse streams the payload through a buffered reader of this size.
const parseBufferSize = 32 * 1024

func init() {
	// Canonical XML mapping: attributes fold into sibling keys of the
	// element's object, without a prefix. Text content lands under
	// "#text".
	mxj.PrependAttrWithHyphen(false)
}

// Parse decodes the payload into the message's structured data and
// validates it against the payload's declared schema. On success data is
// replaced wholesale, one AuditLog entry is appended and the version is
// incremented; on any failure the message is untouched.
func (m *Message) Parse(description, workflowID string, workflowVersion uint16, taskID string) error {
	startTime := time.Now().UTC()

	var src io.Reader
	switch {
	case m.Payload.Content != nil:
		src = bytes.NewReader(m.Payload.Content)
	case m.Payload.URL != "":
		f, err := os.Open(m.Payload.URL)
		if err != nil {
			return newFunctionError("Parse", 400, "open payload file", err)
		}
		defer f.Close()
		src = f
	default:
		return newFunctionError("Parse", 400, "no content or URL provided", ErrMissingSource)
	}

	reader := bufio.NewReaderSize(src, parseBufferSize)

	var doc any
	switch m.Payload.Format {
	case FormatJson:
		if err := json.NewDecoder(reader).Decode(&doc); err != nil {
			return newFunctionError("Parse", 400, "decode JSON payload", err)
		}
	default:
		mv, err := mxj.NewMapXmlReader(reader)
		if err != nil {
			return newFunctionError("Parse", 400, "decode XML payload", err)
		}
		doc = map[string]any(mv)
	}

	if err := schema.Validate(string(m.Payload.Schema), doc); err != nil {
		return newFunctionError("Parse", 400, "schema validation error",
			&SchemaValidationError{Schema: string(m.Payload.Schema), Err: err})
	}

	m.Data = doc

	if description == "" {
		description = "ISO20022 message parsed"
	}
	change := NewChangeLog("data", "ISO20022 message parsed", nil, nil)
	audit := NewAuditLog(workflowID, workflowVersion, taskID, startTime, description, []ChangeLog{change})
	m.Audit = append(m.Audit, audit)
	m.Version++
	return nil
}
