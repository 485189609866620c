package kie

import (
	"strings"

	"genflow/internal/domain"
)

type veoRequest struct {
	Prompt      string   `json:"prompt"`
	Model       string   `json:"model"`
	AspectRatio string   `json:"aspectRatio,omitempty"`
	ImageURLs   []string `json:"imageUrls,omitempty"`
}

func veoPayload(model string, req domain.RequestSpec) any {
	p := veoRequest{
		Prompt:      req.Prompt,
		Model:       model,
		AspectRatio: veoAspectRatio(req.AspectRatio),
	}
	if req.ImageURL != "" {
		p.ImageURLs = []string{req.ImageURL}
	}
	return p
}

// Veo renders landscape or portrait only.
func veoAspectRatio(aspect string) string {
	switch strings.TrimSpace(aspect) {
	case "9:16", "3:4":
		return "9:16"
	default:
		return "16:9"
	}
}

type gpt4oRequest struct {
	Prompt    string   `json:"prompt"`
	Size      string   `json:"size"`
	NVariants int      `json:"nVariants"`
	FilesURL  []string `json:"filesUrl,omitempty"`
}

func gpt4oPayload(_ string, req domain.RequestSpec) any {
	prompt := req.Prompt
	if req.NegativePrompt != "" {
		prompt += "\nAvoid: " + req.NegativePrompt
	}
	p := gpt4oRequest{
		Prompt:    prompt,
		Size:      gpt4oSize(req.AspectRatio),
		NVariants: 1,
	}
	if req.ImageURL != "" {
		p.FilesURL = []string{req.ImageURL}
	}
	return p
}

// GPT-4o image accepts 1:1, 3:2 and 2:3.
func gpt4oSize(aspect string) string {
	switch strings.TrimSpace(aspect) {
	case "16:9", "4:3":
		return "3:2"
	case "9:16", "3:4":
		return "2:3"
	default:
		return "1:1"
	}
}
