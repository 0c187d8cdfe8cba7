package jimeng

import "fmt"

// MediaType is the asset type carried by a result.
type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
)

// GenerationResult is the single normalized result shape.
type GenerationResult struct {
	Type        MediaType `json:"type"`
	URL         string    `json:"url"`
	Description string    `json:"description,omitempty"`
}

// EnvelopeData is the task part of an Envelope.
type EnvelopeData struct {
	TaskID        string            `json:"task_id"`
	Status        string            `json:"status"`
	VideoURL      string            `json:"video_url,omitempty"`
	Result        *GenerationResult `json:"result,omitempty"`
	StatusMessage string            `json:"statusMessage,omitempty"`
}

// Envelope is the uniform response shape shared by both transport strategies
// and the local proxy.
type Envelope struct {
	Success bool          `json:"success"`
	Data    *EnvelopeData `json:"data,omitempty"`
	Error   string        `json:"error,omitempty"`
}

func failureEnvelope(format string, args ...any) *Envelope {
	return &Envelope{Success: false, Error: fmt.Sprintf(format, args...)}
}

// failedTaskEnvelope reports a task the provider no longer knows. The query
// itself succeeded, so it is a failed status rather than an unsuccessful envelope.
func failedTaskEnvelope(taskID, message string) *Envelope {
	return &Envelope{
		Success: true,
		Data:    &EnvelopeData{TaskID: taskID, Status: string(StatusFailed), StatusMessage: message},
	}
}

// ProxyPayload is the JSON body the browser form and the proxied client send
// to the local signing proxy.
type ProxyPayload struct {
	Kind           Kind     `json:"kind,omitempty"`
	TaskID         string   `json:"task_id,omitempty"`
	Prompt         string   `json:"prompt,omitempty"`
	ImageBase64    string   `json:"imageBase64,omitempty"`
	ImageURL       string   `json:"imageUrl,omitempty"`
	Seed           *int     `json:"seed,omitempty"`
	AspectRatio    string   `json:"aspect_ratio,omitempty"`
	Width          int      `json:"width,omitempty"`
	Height         int      `json:"height,omitempty"`
	ControlNetType string   `json:"controlnet_type,omitempty"`
	Strength       *float64 `json:"strength,omitempty"`
}

// Request turns the form payload into the typed request for kind.
func (p ProxyPayload) Request(kind Kind) (Request, error) {
	switch kind {
	case KindTextToVideo:
		return TextToVideo{Prompt: p.Prompt, Seed: p.Seed, AspectRatio: p.AspectRatio}, nil
	case KindImageToVideo:
		return ImageToVideo{Prompt: p.Prompt, ImageBase64: p.ImageBase64, ImageURL: p.ImageURL, Seed: p.Seed, AspectRatio: p.AspectRatio}, nil
	case KindTextToImage:
		return TextToImage{Prompt: p.Prompt, Width: p.Width, Height: p.Height, Seed: p.Seed}, nil
	case KindImageToImage:
		return ImageToImage{Prompt: p.Prompt, ImageBase64: p.ImageBase64, ControlNetType: p.ControlNetType, Strength: p.Strength}, nil
	case KindImageEdit:
		return ImageEdit{Prompt: p.Prompt, ImageBase64: p.ImageBase64, Strength: p.Strength}, nil
	default:
		return nil, fmt.Errorf("jimeng: unknown generation kind %q", kind)
	}
}

func (r TextToVideo) form() ProxyPayload {
	return ProxyPayload{Kind: r.Kind(), Prompt: r.Prompt, Seed: r.Seed, AspectRatio: r.AspectRatio}
}

func (r ImageToVideo) form() ProxyPayload {
	return ProxyPayload{Kind: r.Kind(), Prompt: r.Prompt, ImageBase64: r.ImageBase64, ImageURL: r.ImageURL, Seed: r.Seed, AspectRatio: r.AspectRatio}
}

func (r TextToImage) form() ProxyPayload {
	return ProxyPayload{Kind: r.Kind(), Prompt: r.Prompt, Width: r.Width, Height: r.Height, Seed: r.Seed}
}

func (r ImageToImage) form() ProxyPayload {
	return ProxyPayload{Kind: r.Kind(), Prompt: r.Prompt, ImageBase64: r.ImageBase64, ControlNetType: r.ControlNetType, Strength: r.Strength}
}

func (r ImageEdit) form() ProxyPayload {
	return ProxyPayload{Kind: r.Kind(), Prompt: r.Prompt, ImageBase64: r.ImageBase64, Strength: r.Strength}
}
