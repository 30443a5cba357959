// Package escribo consumes the Escribo API: public garment and profile
// lookups behind a short-lived cache, and the admin QR batch workflow.
package escribo

import "encoding/json"

// Story is the text currently attached to a garment.
type Story struct {
	ID              string `json:"id"`
	Content         string `json:"content"`
	Emoji           string `json:"emoji,omitempty"`
	BackgroundColor string `json:"background_color,omitempty"`
	CreatedAt       string `json:"created_at"`
}

// Owner is the public part of the garment owner's profile.
type Owner struct {
	Username  string `json:"username,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Garment is a physical item reachable through its QR slug.
type Garment struct {
	ID           string `json:"id"`
	Slug         string `json:"slug"`
	Status       string `json:"status"`
	CurrentStory *Story `json:"current_story"`
	Owner        *Owner `json:"owner,omitempty"`
}

// HasStory reports whether the garment currently shows a story.
func (g *Garment) HasStory() bool {
	return g != nil && g.CurrentStory != nil
}

// Profile is a public user profile.
type Profile struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Name      string `json:"name"`
	Bio       string `json:"bio"`
	AvatarURL string `json:"avatar_url"`
	CreatedAt string `json:"created_at"`
}

// Batch is an exported set of freshly generated QR codes.
type Batch struct {
	Filename    string
	ContentType string
	Archive     []byte
	// Garments are the generated records, passed through to the export step untouched.
	Garments []json.RawMessage
}

type generateRequest struct {
	Count int `json:"count" validate:"min=1,max=1000"`
}

type generateResponse struct {
	Garments []json.RawMessage `json:"garments"`
}

type exportRequest struct {
	Garments []json.RawMessage `json:"garments"`
}
