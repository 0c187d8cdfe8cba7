package jimeng

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// Kind identifies a generation flow.
type Kind string

const (
	KindTextToVideo  Kind = "text-to-video"
	KindImageToVideo Kind = "image-to-video"
	KindTextToImage  Kind = "text-to-image"
	KindImageToImage Kind = "image-to-image"
	KindImageEdit    Kind = "image-edit"
)

// Kinds lists every supported flow.
var Kinds = []Kind{KindTextToVideo, KindImageToVideo, KindTextToImage, KindImageToImage, KindImageEdit}

// ParseKind accepts a kind name case-insensitively.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("jimeng: unknown generation kind %q", s)
}

// Synchronous reports whether the provider answers this kind with the
// finished result instead of a task id.
func (k Kind) Synchronous() bool {
	return k == KindTextToImage || k == KindImageToImage
}

// MediaType is the type of asset the kind produces.
func (k Kind) MediaType() MediaType {
	switch k {
	case KindTextToVideo, KindImageToVideo:
		return MediaVideo
	default:
		return MediaImage
	}
}

const (
	DefaultAspectRatio = "16:9"
	defaultSeed        = -1
	defaultImageSide   = 512

	defaultControlNet         = "depth"
	defaultImageToImageScale  = 0.6
	defaultEditStrength       = 0.5
	defaultImageToImagePrompt = "保持原图风格，生成新的图片"
)

// Request is a generation job for one kind. The set of implementations is closed.
type Request interface {
	Kind() Kind
	// providerBody renders the provider JSON body for the given req_key.
	providerBody(reqKey string) any
	// form renders the payload understood by the local signing proxy.
	form() ProxyPayload
}

// TextToVideo generates a clip from a prompt.
type TextToVideo struct {
	Prompt      string `validate:"required"`
	Seed        *int
	AspectRatio string `validate:"omitempty,oneof=16:9 9:16 1:1 4:3 3:4 21:9"`
}

// ImageToVideo animates a source image.
type ImageToVideo struct {
	Prompt      string
	ImageBase64 string `validate:"required_without=ImageURL"`
	ImageURL    string `validate:"omitempty,url"`
	Seed        *int
	AspectRatio string `validate:"omitempty,oneof=16:9 9:16 1:1 4:3 3:4 21:9"`
}

// TextToImage renders a still from a prompt.
type TextToImage struct {
	Prompt string `validate:"required"`
	Width  int    `validate:"omitempty,min=64,max=4096"`
	Height int    `validate:"omitempty,min=64,max=4096"`
	Seed   *int
}

// ImageToImage re-renders a source image under ControlNet guidance.
type ImageToImage struct {
	Prompt         string
	ImageBase64    string   `validate:"required"`
	ControlNetType string   `validate:"omitempty,oneof=canny depth pose"`
	Strength       *float64 `validate:"omitempty,gte=0,lte=1"`
}

// ImageEdit applies an instruction to a source image.
type ImageEdit struct {
	Prompt      string   `validate:"required"`
	ImageBase64 string   `validate:"required"`
	Strength    *float64 `validate:"omitempty,gte=0,lte=1"`
}

func (TextToVideo) Kind() Kind  { return KindTextToVideo }
func (ImageToVideo) Kind() Kind { return KindImageToVideo }
func (TextToImage) Kind() Kind  { return KindTextToImage }
func (ImageToImage) Kind() Kind { return KindImageToImage }
func (ImageEdit) Kind() Kind    { return KindImageEdit }

var validate = validator.New()

// Validate checks the kind-specific required fields.
func Validate(req Request) error {
	if req == nil {
		return fmt.Errorf("jimeng: request is required")
	}
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("jimeng: invalid %s request: %w", req.Kind(), err)
	}
	return nil
}

type submitBody struct {
	ReqKey           string   `json:"req_key"`
	Prompt           string   `json:"prompt,omitempty"`
	BinaryDataBase64 []string `json:"binary_data_base64,omitempty"`
	ImageURLs        []string `json:"image_urls,omitempty"`
	Seed             int      `json:"seed"`
	AspectRatio      string   `json:"aspect_ratio,omitempty"`
	Scale            *float64 `json:"scale,omitempty"`
}

type textToImageBody struct {
	ReqKey    string `json:"req_key"`
	Prompt    string `json:"prompt"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Seed      int    `json:"seed"`
	ReturnURL bool   `json:"return_url"`
	UsePreLLM bool   `json:"use_pre_llm"`
}

type controlNetArg struct {
	Type            string  `json:"type"`
	BinaryDataIndex int     `json:"binary_data_index"`
	Strength        float64 `json:"strength"`
}

type logoInfo struct {
	AddLogo bool `json:"add_logo"`
}

type imageToImageBody struct {
	ReqKey           string          `json:"req_key"`
	Prompt           string          `json:"prompt"`
	BinaryDataBase64 []string        `json:"binary_data_base64"`
	ControlNetArgs   []controlNetArg `json:"controlnet_args"`
	Seed             int             `json:"seed"`
	Scale            float64         `json:"scale"`
	DDIMSteps        int             `json:"ddim_steps"`
	UseRephraser     bool            `json:"use_rephraser"`
	ReturnURL        bool            `json:"return_url"`
	LogoInfo         logoInfo        `json:"logo_info"`
}

type pollBody struct {
	ReqKey  string `json:"req_key"`
	TaskID  string `json:"task_id"`
	ReqJSON string `json:"req_json,omitempty"`
}

func (r TextToVideo) providerBody(reqKey string) any {
	return submitBody{
		ReqKey:      reqKey,
		Prompt:      strings.TrimSpace(r.Prompt),
		Seed:        seedOrDefault(r.Seed),
		AspectRatio: aspectOrDefault(r.AspectRatio),
	}
}

func (r ImageToVideo) providerBody(reqKey string) any {
	body := submitBody{
		ReqKey:      reqKey,
		Prompt:      strings.TrimSpace(r.Prompt),
		Seed:        seedOrDefault(r.Seed),
		AspectRatio: aspectOrDefault(r.AspectRatio),
	}
	if r.ImageBase64 != "" {
		body.BinaryDataBase64 = []string{r.ImageBase64}
	} else if r.ImageURL != "" {
		body.ImageURLs = []string{r.ImageURL}
	}
	return body
}

func (r TextToImage) providerBody(reqKey string) any {
	prompt := strings.TrimSpace(r.Prompt)
	return textToImageBody{
		ReqKey:    reqKey,
		Prompt:    prompt,
		Width:     intOrDefault(r.Width, defaultImageSide),
		Height:    intOrDefault(r.Height, defaultImageSide),
		Seed:      seedOrDefault(r.Seed),
		ReturnURL: true,
		UsePreLLM: utf8.RuneCountInString(prompt) <= 30,
	}
}

func (r ImageToImage) providerBody(reqKey string) any {
	prompt := strings.TrimSpace(r.Prompt)
	rephrase := prompt == "" || utf8.RuneCountInString(prompt) < 50
	if prompt == "" {
		prompt = defaultImageToImagePrompt
	}
	controlNet := r.ControlNetType
	if controlNet == "" {
		controlNet = defaultControlNet
	}
	strength := floatOrDefault(r.Strength, defaultImageToImageScale)
	return imageToImageBody{
		ReqKey:           reqKey,
		Prompt:           prompt,
		BinaryDataBase64: []string{r.ImageBase64},
		ControlNetArgs: []controlNetArg{{
			Type:            controlNet,
			BinaryDataIndex: 0,
			Strength:        strength,
		}},
		Seed:         defaultSeed,
		Scale:        3.0,
		DDIMSteps:    16,
		UseRephraser: rephrase,
		ReturnURL:    true,
	}
}

func (r ImageEdit) providerBody(reqKey string) any {
	strength := floatOrDefault(r.Strength, defaultEditStrength)
	return submitBody{
		ReqKey:           reqKey,
		Prompt:           strings.TrimSpace(r.Prompt),
		BinaryDataBase64: []string{r.ImageBase64},
		Seed:             defaultSeed,
		Scale:            &strength,
	}
}

// pollRequestJSON is the extra req_json the image-edit query needs to get URLs back.
func pollRequestJSON(kind Kind) string {
	if kind != KindImageEdit {
		return ""
	}
	raw, _ := json.Marshal(struct {
		ReturnURL bool     `json:"return_url"`
		LogoInfo  logoInfo `json:"logo_info"`
	}{ReturnURL: true})
	return string(raw)
}

func seedOrDefault(seed *int) int {
	if seed == nil {
		return defaultSeed
	}
	return *seed
}

func aspectOrDefault(aspect string) string {
	if aspect = strings.TrimSpace(aspect); aspect != "" {
		return aspect
	}
	return DefaultAspectRatio
}

func floatOrDefault(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}

func intOrDefault(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}
