package message

// StorageType says where the raw payload bytes live.
type StorageType string

const (
	StorageInline StorageType = "Inline"
	StorageFile   StorageType = "File"
)

// PayloadFormat is the wire format of the raw payload.
type PayloadFormat string

const (
	FormatXml  PayloadFormat = "Xml"
	FormatJson PayloadFormat = "Json"
)

// PayloadSchema names the message standard the payload claims to follow.
type PayloadSchema string

const (
	SchemaISO20022 PayloadSchema = "ISO20022"
)

// Encoding is the character encoding of the payload bytes.
// The canonical wire names ("UTF-8", ...) double as the enum values.
type Encoding string

const (
	EncodingUtf8  Encoding = "UTF-8"
	EncodingUtf16 Encoding = "UTF-16"
	EncodingUtf32 Encoding = "UTF-32"
	EncodingAscii Encoding = "ASCII"
)

// Payload is the raw wire form of a Message: either inline bytes or a
// reference to an external file. Immutable after construction.
type Payload struct {
	Storage  StorageType   `json:"storage"`
	Content  []byte        `json:"content,omitempty"`
	URL      string        `json:"url,omitempty"`
	Format   PayloadFormat `json:"format"`
	Schema   PayloadSchema `json:"schema"`
	Encoding Encoding      `json:"encoding"`
	Size     int64         `json:"size"`
}

// NewInlinePayload wraps content held in memory.
func NewInlinePayload(content []byte, format PayloadFormat, schema PayloadSchema, encoding Encoding) Payload {
	return Payload{
		Storage:  StorageInline,
		Content:  content,
		Format:   format,
		Schema:   schema,
		Encoding: encoding,
		Size:     int64(len(content)),
	}
}

// NewFilePayload references content stored at a local file URL.
func NewFilePayload(url string, format PayloadFormat, schema PayloadSchema, encoding Encoding, size int64) Payload {
	return Payload{
		Storage:  StorageFile,
		URL:      url,
		Format:   format,
		Schema:   schema,
		Encoding: encoding,
		Size:     size,
	}
}
