// Package heygen adapts the HeyGen talking-avatar video API.
package heygen

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"genflow/internal/domain"
	"genflow/internal/infra"
	"genflow/internal/providers"
)

// Name is the registry name of the HeyGen adapter.
const Name = "heygen"

const defaultVoiceID = "1bd001e7e50f421d891986aad5158bc8"

type Options struct {
	APIKey      string
	BaseURL     string
	VoiceID     string
	HTTPClient  *http.Client
	Logger      *infra.Logger
	Interval    time.Duration
	MaxAttempts int
}

type Client struct {
	apiKey     string
	baseURL    string
	voiceID    string
	httpClient *http.Client
	logger     *infra.Logger
	policy     providers.PollPolicy
}

type generateRequest struct {
	VideoInputs []videoInput `json:"video_inputs"`
	Dimension   dimension    `json:"dimension"`
}

type videoInput struct {
	Character character `json:"character"`
	Voice     voice     `json:"voice"`
}

type character struct {
	Type        string `json:"type"`
	AvatarID    string `json:"avatar_id"`
	AvatarStyle string `json:"avatar_style"`
}

type voice struct {
	Type      string `json:"type"`
	InputText string `json:"input_text"`
	VoiceID   string `json:"voice_id"`
}

type dimension struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type generateResponse struct {
	Error *apiError `json:"error"`
	Data  struct {
		VideoID string `json:"video_id"`
	} `json:"data"`
}

type statusResponse struct {
	Code int `json:"code"`
	Data struct {
		ID       string    `json:"id"`
		Status   string    `json:"status"`
		VideoURL string    `json:"video_url"`
		Error    *apiError `json:"error"`
	} `json:"data"`
	Message string `json:"message"`
}

type apiError struct {
	Code    any    `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.heygen.com"
	}
	voiceID := strings.TrimSpace(opts.VoiceID)
	if voiceID == "" {
		voiceID = defaultVoiceID
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.DiscardLogger()
	}
	policy := providers.PollPolicy{Interval: 30 * time.Second, MaxAttempts: 40}
	if opts.Interval > 0 {
		policy.Interval = opts.Interval
	}
	if opts.MaxAttempts > 0 {
		policy.MaxAttempts = opts.MaxAttempts
	}
	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		voiceID:    voiceID,
		httpClient: httpClient,
		logger:     logger,
		policy:     policy,
	}
}

func (c *Client) Name() string { return Name }

func (c *Client) Kind() domain.Kind { return domain.KindAvatar }

func (c *Client) Policy() providers.PollPolicy { return c.policy }

func (c *Client) HasCredentials() bool { return c.apiKey != "" }

// Submit starts an avatar render with the prompt as the spoken script.
func (c *Client) Submit(ctx context.Context, req domain.RequestSpec) (string, error) {
	if !c.HasCredentials() {
		return "", providers.MissingKey(Name)
	}
	voiceID := req.VoiceID
	if voiceID == "" {
		voiceID = c.voiceID
	}
	payload := generateRequest{
		VideoInputs: []videoInput{{
			Character: character{Type: "avatar", AvatarID: req.AvatarID, AvatarStyle: "normal"},
			Voice:     voice{Type: "text", InputText: req.Prompt, VoiceID: voiceID},
		}},
		Dimension: dimensionFor(req.AspectRatio),
	}
	httpReq, err := providers.NewJSONRequest(ctx, http.MethodPost, c.baseURL+"/v2/video/generate", payload)
	if err != nil {
		return "", &providers.Error{Kind: providers.KindValidation, Provider: Name, Message: err.Error(), Err: err}
	}
	c.authorize(httpReq)

	var resp generateResponse
	if err := providers.DoJSON(c.httpClient, Name, httpReq, &resp); err != nil {
		return "", err
	}
	if resp.Error != nil && resp.Error.Message != "" {
		return "", &providers.Error{Kind: providers.KindValidation, Provider: Name, Message: resp.Error.Message}
	}
	id := strings.TrimSpace(resp.Data.VideoID)
	if id == "" {
		return "", &providers.Error{Kind: providers.KindAPI, Provider: Name, Message: "empty video_id"}
	}
	c.logger.Debug().
		Str("provider", Name).
		Str("avatar_id", req.AvatarID).
		Str("external_job_id", id).
		Msg("heygen: video submitted")
	return id, nil
}

func (c *Client) FetchStatus(ctx context.Context, externalJobID string) (providers.Outcome, error) {
	if !c.HasCredentials() {
		return providers.Outcome{}, providers.MissingKey(Name)
	}
	endpoint := c.baseURL + "/v1/video_status.get?video_id=" + url.QueryEscape(externalJobID)
	httpReq, err := providers.NewJSONRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return providers.Outcome{}, err
	}
	c.authorize(httpReq)

	var resp statusResponse
	if err := providers.DoJSON(c.httpClient, Name, httpReq, &resp); err != nil {
		return providers.Outcome{}, err
	}

	switch strings.ToLower(resp.Data.Status) {
	case "completed":
		if u := providers.ExtractResultURL(resp.Data.VideoURL); u != "" {
			return providers.Succeeded(u), nil
		}
		return providers.Succeeded(), nil
	case "failed":
		reason := "avatar render failed"
		if resp.Data.Error != nil {
			if msg := strings.TrimSpace(resp.Data.Error.Message); msg != "" {
				reason = msg
			} else if detail := strings.TrimSpace(resp.Data.Error.Detail); detail != "" {
				reason = detail
			}
		}
		return providers.Failed(reason), nil
	default:
		// pending, waiting and processing
		return providers.Pending(), nil
	}
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("X-Api-Key", c.apiKey)
}

func dimensionFor(aspect string) dimension {
	switch aspect {
	case "9:16":
		return dimension{Width: 720, Height: 1280}
	case "1:1":
		return dimension{Width: 720, Height: 720}
	case "4:3":
		return dimension{Width: 960, Height: 720}
	case "3:4":
		return dimension{Width: 720, Height: 960}
	default:
		return dimension{Width: 1280, Height: 720}
	}
}

var _ providers.Adapter = (*Client)(nil)
