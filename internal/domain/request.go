package domain

import (
	"fmt"
	"strings"
)

// RequestSpec is the provider-agnostic description of what to generate. It is
// stored verbatim on the job so a retry can resubmit the same request.
type RequestSpec struct {
	Provider        string `json:"provider,omitempty"`
	Model           string `json:"model,omitempty"`
	Prompt          string `json:"prompt"`
	NegativePrompt  string `json:"negative_prompt,omitempty"`
	AspectRatio     string `json:"aspect_ratio,omitempty"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
	ImageURL        string `json:"image_url,omitempty"`
	AvatarID        string `json:"avatar_id,omitempty"`
	VoiceID         string `json:"voice_id,omitempty"`
}

var supportedAspectRatios = map[string]struct{}{
	"1:1":  {},
	"4:3":  {},
	"3:4":  {},
	"16:9": {},
	"9:16": {},
}

// Normalize trims inputs and fills the per-kind defaults.
func (r RequestSpec) Normalize(kind Kind) RequestSpec {
	r.Provider = strings.ToLower(strings.TrimSpace(r.Provider))
	r.Model = strings.TrimSpace(r.Model)
	r.Prompt = strings.TrimSpace(r.Prompt)
	r.NegativePrompt = strings.TrimSpace(r.NegativePrompt)
	r.AspectRatio = strings.TrimSpace(r.AspectRatio)
	r.ImageURL = strings.TrimSpace(r.ImageURL)
	r.AvatarID = strings.TrimSpace(r.AvatarID)
	r.VoiceID = strings.TrimSpace(r.VoiceID)
	if r.AspectRatio == "" {
		if kind == KindImage {
			r.AspectRatio = "1:1"
		} else {
			r.AspectRatio = "16:9"
		}
	}
	if r.DurationSeconds < 0 {
		r.DurationSeconds = 0
	}
	return r
}

// Validate rejects requests no provider could accept. The returned error
// wraps ErrInvalidRequest.
func (r RequestSpec) Validate(kind Kind) error {
	if r.Prompt == "" {
		return fmt.Errorf("%w: prompt is required", ErrInvalidRequest)
	}
	if _, ok := supportedAspectRatios[r.AspectRatio]; !ok {
		return fmt.Errorf("%w: unsupported aspect ratio %q", ErrInvalidRequest, r.AspectRatio)
	}
	if kind == KindAvatar && r.AvatarID == "" {
		return fmt.Errorf("%w: avatar_id is required for avatar jobs", ErrInvalidRequest)
	}
	return nil
}
