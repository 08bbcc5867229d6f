package gemini

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mimeType"`
	// Data is standard base64.
	Data string `json:"data"`
}

type generationConfig struct {
	ResponseMIMEType string  `json:"responseMimeType,omitempty"`
	ResponseSchema   *schema `json:"responseSchema,omitempty"`
}

// schema is the OpenAPI subset accepted as a response schema.
type schema struct {
	Type             string             `json:"type"`
	Description      string             `json:"description,omitempty"`
	Properties       map[string]*schema `json:"properties,omitempty"`
	PropertyOrdering []string           `json:"propertyOrdering,omitempty"`
	Required         []string           `json:"required,omitempty"`
	Items            *schema            `json:"items,omitempty"`
}

func textRequest(prompt string) generateRequest {
	return generateRequest{Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}}}
}

func jsonRequest(parts []part, s *schema) generateRequest {
	return generateRequest{
		Contents: []content{{Role: "user", Parts: parts}},
		GenerationConfig: &generationConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   s,
		},
	}
}

// Match is one smart search hit.
type Match struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// Document is the condensed view of a file sent to smart search.
type Document struct {
	ID               string `json:"id"`
	Filename         string `json:"filename"`
	Summary          string `json:"summary"`
	OCRText          string `json:"ocrText"`
	OriginalLanguage string `json:"originalLanguage"`
}

// Language is a translation target.
type Language string

const (
	English Language = "English"
	Greek   Language = "Greek"
)

// Valid reports whether l is a supported translation target.
func (l Language) Valid() bool {
	return l == English || l == Greek
}
