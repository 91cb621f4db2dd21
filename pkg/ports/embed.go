package ports

import "context"

// EmbedMeta describes an embeddable view learned from an oEmbed lookup.
type EmbedMeta struct {
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
	Type   string `json:"type,omitempty"`
}

// EmbedResolver maps a capture URL to a wrapper page that renders a clean embed of it.
type EmbedResolver interface {
	// Resolve returns the wrapper URL and its metadata.
	// ok is false when the URL has no embeddable view.
	Resolve(ctx context.Context, captureURL string) (wrapperURL string, meta EmbedMeta, ok bool, err error)

	// ProbeURL returns the metadata redirect URL for captureURL. Fetching it
	// through the recording proxy verifies the embed can be recorded.
	ProbeURL(captureURL string) string
}
