package generation

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Mode selects between plain prompt generation and image-seeded generation.
type Mode string

const (
	ModeText  Mode = "text"
	ModeImage Mode = "image"
)

// AspectRatio is the frame shape requested from the remote service.
type AspectRatio string

const (
	AspectWide AspectRatio = "16:9"
	AspectTall AspectRatio = "9:16"
)

const defaultImageMIME = "image/png"

// SourceImage is the still frame used to seed an image-to-video request.
type SourceImage struct {
	Data     []byte
	MIMEType string
}

// Request describes one generation attempt. It is treated as a value: the
// client never mutates a request it receives.
type Request struct {
	Mode        Mode
	Prompt      string
	Image       *SourceImage
	AspectRatio AspectRatio
}

// ParseMode maps user input ("text", "image", and the long TEXT_TO_MEDIA
// style names) onto a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "text_to_media", "text_to_video":
		return ModeText, nil
	case "image", "image_to_media", "image_to_video":
		return ModeImage, nil
	default:
		return "", fmt.Errorf("unknown mode %q", s)
	}
}

// ParseAspectRatio accepts "16:9"/"9:16" as well as "wide"/"tall".
func ParseAspectRatio(s string) (AspectRatio, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "16:9", "wide", "landscape":
		return AspectWide, nil
	case "9:16", "tall", "portrait":
		return AspectTall, nil
	default:
		return "", fmt.Errorf("unknown aspect ratio %q", s)
	}
}

// Normalized returns a copy with defaults applied: an empty aspect ratio
// becomes AspectWide and an image without a MIME type is treated as PNG.
func (r Request) Normalized() Request {
	out := r
	if out.AspectRatio == "" {
		out.AspectRatio = AspectWide
	}
	if out.Image != nil {
		img := *out.Image
		if strings.TrimSpace(img.MIMEType) == "" {
			img.MIMEType = defaultImageMIME
		}
		out.Image = &img
	}
	return out
}

// Validate reports an ErrInvalidRequest error when the request cannot be
// submitted. It is checked before any network call.
func (r Request) Validate() error {
	switch r.Mode {
	case ModeText:
		if strings.TrimSpace(r.Prompt) == "" {
			return invalidf("prompt is required for text generation")
		}
		if r.Image != nil {
			return invalidf("source image is only accepted in image mode")
		}
	case ModeImage:
		if r.Image == nil {
			return invalidf("source image is required in image mode")
		}
		if len(r.Image.Data) == 0 {
			return invalidf("source image is empty")
		}
		if mime := strings.TrimSpace(r.Image.MIMEType); mime != "" && !strings.HasPrefix(mime, "image/") {
			return invalidf("source image has unsupported mime type %q", mime)
		}
	default:
		return invalidf("unknown mode %q", r.Mode)
	}
	switch r.AspectRatio {
	case "", AspectWide, AspectTall:
	default:
		return invalidf("unsupported aspect ratio %q", r.AspectRatio)
	}
	return nil
}

// DecodeSourceImage accepts either raw base64 or a data URL such as
// "data:image/jpeg;base64,...". The MIME type embedded in a data URL wins
// over fallbackMIME.
func DecodeSourceImage(encoded, fallbackMIME string) (*SourceImage, error) {
	payload := strings.TrimSpace(encoded)
	if payload == "" {
		return nil, invalidf("image data is empty")
	}
	mime := strings.TrimSpace(fallbackMIME)
	if strings.HasPrefix(payload, "data:") {
		header, data, ok := strings.Cut(payload, ",")
		if !ok {
			return nil, invalidf("malformed data url")
		}
		meta := strings.TrimPrefix(header, "data:")
		if !strings.HasSuffix(meta, ";base64") {
			return nil, invalidf("data url must be base64 encoded")
		}
		if m := strings.TrimSuffix(meta, ";base64"); m != "" {
			mime = m
		}
		payload = data
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		raw, err = base64.RawStdEncoding.DecodeString(payload)
		if err != nil {
			return nil, &Error{Kind: ErrInvalidRequest, Op: "decode image", Message: "image data is not valid base64", Err: err}
		}
	}
	if mime == "" {
		mime = defaultImageMIME
	}
	return &SourceImage{Data: raw, MIMEType: mime}, nil
}
