package genai

import "context"

// Part is one element of a multimodal request or response. Exactly one of
// Text, FileURI, or InlineData is set.
type Part struct {
	Text       string `json:"text,omitempty"`
	FileURI    string `json:"file_uri,omitempty"`
	MIMEType   string `json:"mime_type,omitempty"`
	InlineData []byte `json:"inline_data,omitempty"`
}

// TextPart builds a text part.
func TextPart(text string) Part {
	return Part{Text: text}
}

// FilePart builds a part referencing a stored artifact by URI.
func FilePart(uri, mimeType string) Part {
	return Part{FileURI: uri, MIMEType: mimeType}
}

// Request describes one generation call against the model service.
type Request struct {
	SystemInstruction  string   `json:"system_instruction,omitempty"`
	Parts              []Part   `json:"parts"`
	Temperature        float64  `json:"temperature"`
	ResponseModalities []string `json:"response_modalities,omitempty"`
}

// Response carries the model output parts.
type Response struct {
	Parts []Part `json:"parts"`
}

// Text concatenates all text parts of the response.
func (r *Response) Text() string {
	var out string
	for _, part := range r.Parts {
		out += part.Text
	}
	return out
}

// InlineMedia returns the first inline media payload, or nil when the
// response contains none.
func (r *Response) InlineMedia() ([]byte, string) {
	for _, part := range r.Parts {
		if len(part.InlineData) > 0 {
			return part.InlineData, part.MIMEType
		}
	}
	return nil, ""
}

// Client is the opaque generative model contract. The pipeline treats the
// model as an external collaborator; only the input/output shape is fixed.
type Client interface {
	GenerateContent(ctx context.Context, req Request) (*Response, error)
}
