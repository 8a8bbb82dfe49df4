package domain

import "encoding/json"

// Typed views of widget payloads. The broker stores and forwards input and
// output as raw JSON; only the CLI builds and decodes these.

// ConfirmInput asks for a yes/no decision.
type ConfirmInput struct {
	Title       string `json:"title"`
	Message     string `json:"message,omitempty"`
	ApproveText string `json:"approveText,omitempty"`
	RejectText  string `json:"rejectText,omitempty"`
}

// ConfirmOutput is the answer to a confirm request.
type ConfirmOutput struct {
	Approved  bool   `json:"approved"`
	Timestamp string `json:"timestamp,omitempty"`
	Comment   string `json:"comment,omitempty"`
}

// SelectInput asks the user to pick one or more options.
type SelectInput struct {
	Title      string   `json:"title"`
	Options    []string `json:"options"`
	Multi      bool     `json:"multi,omitempty"`
	Searchable bool     `json:"searchable,omitempty"`
}

// SelectOutput carries a string or a list of strings in Selected.
type SelectOutput struct {
	Selected json.RawMessage `json:"selected"`
	Comment  string          `json:"comment,omitempty"`
}

// FormInput renders a JSON Schema form.
type FormInput struct {
	Title  string          `json:"title"`
	Schema json.RawMessage `json:"schema"`
}

// FormOutput is the submitted form data.
type FormOutput struct {
	Data    json.RawMessage `json:"data"`
	Comment string          `json:"comment,omitempty"`
}

// UploadInput asks for one or more files.
type UploadInput struct {
	Title       string   `json:"title"`
	Accept      []string `json:"accept,omitempty"`
	Multiple    bool     `json:"multiple,omitempty"`
	MaxSize     int64    `json:"maxSize,omitempty"`
	CallbackURL string   `json:"callbackUrl,omitempty"`
}

// UploadedFile describes one file reported by the client.
type UploadedFile struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	Path     string `json:"path"`
	MimeType string `json:"mimeType"`
}

// UploadOutput lists the uploaded files.
type UploadOutput struct {
	Files   []UploadedFile `json:"files"`
	Comment string         `json:"comment,omitempty"`
}

// TableInput asks the user to pick rows.
type TableInput struct {
	Title       string            `json:"title"`
	Data        []json.RawMessage `json:"data"`
	Columns     []string          `json:"columns,omitempty"`
	MultiSelect bool              `json:"multiSelect,omitempty"`
	Searchable  bool              `json:"searchable,omitempty"`
}

// TableOutput carries a row or a list of rows in Selected.
type TableOutput struct {
	Selected json.RawMessage `json:"selected"`
	Comment  string          `json:"comment,omitempty"`
}

// ImageItem is a single image; Src is a URL (including /api/images/{id}) or a data URI.
type ImageItem struct {
	Src     string `json:"src"`
	Alt     string `json:"alt,omitempty"`
	Label   string `json:"label,omitempty"`
	Caption string `json:"caption,omitempty"`
}

// Image widget modes.
const (
	ImageModeSelect  = "select"
	ImageModeConfirm = "confirm"
)

// ImageInput shows images and asks for a pick or a confirmation.
type ImageInput struct {
	Title   string      `json:"title"`
	Message string      `json:"message,omitempty"`
	Images  []ImageItem `json:"images"`
	Mode    string      `json:"mode"`
	Options []string    `json:"options,omitempty"`
	Multi   bool        `json:"multi,omitempty"`
}

// ImageOutput holds an index, a list of indexes, a bool or option labels depending on the mode.
type ImageOutput struct {
	Selected  json.RawMessage `json:"selected"`
	Timestamp string          `json:"timestamp,omitempty"`
	Comment   string          `json:"comment,omitempty"`
}
