// Package kie adapts the Kie.ai task APIs (Veo video and GPT-4o image) to the
// providers.Adapter contract. Both families share the same envelope and the
// successFlag status convention.
package kie

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"genflow/internal/domain"
	"genflow/internal/infra"
	"genflow/internal/providers"
)

const (
	NameVeo        = "kie-veo"
	NameGPT4oImage = "kie-gpt4o"

	providerName = "kie"

	// codeMaintenance is Kie's body code for a temporarily unavailable model.
	codeMaintenance = 455
)

const (
	flagGenerating = 0
	flagSuccess    = 1
	flagFailed     = 2
	flagGenFailed  = 3
)

// Options configures a Kie client. Zero values fall back to per-family
// defaults.
type Options struct {
	APIKey      string
	BaseURL     string
	Model       string
	HTTPClient  *http.Client
	Logger      *infra.Logger
	Interval    time.Duration
	MaxAttempts int
}

type family struct {
	name         string
	kind         domain.Kind
	generatePath string
	recordPath   string
	defaultModel string
	policy       providers.PollPolicy
	payload      func(model string, req domain.RequestSpec) any
}

var veoFamily = family{
	name:         NameVeo,
	kind:         domain.KindVideo,
	generatePath: "/api/v1/veo/generate",
	recordPath:   "/api/v1/veo/record-info",
	defaultModel: "veo3_fast",
	policy:       providers.PollPolicy{Interval: 15 * time.Second, MaxAttempts: 60},
	payload:      veoPayload,
}

var gpt4oFamily = family{
	name:         NameGPT4oImage,
	kind:         domain.KindImage,
	generatePath: "/api/v1/gpt4o-image/generate",
	recordPath:   "/api/v1/gpt4o-image/record-info",
	policy:       providers.PollPolicy{Interval: 5 * time.Second, MaxAttempts: 60},
	payload:      gpt4oPayload,
}

// Client talks to one Kie task family.
type Client struct {
	family     family
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *infra.Logger
	policy     providers.PollPolicy
}

// NewVeoClient returns the video adapter backed by Veo.
func NewVeoClient(opts Options) *Client {
	return newClient(veoFamily, opts)
}

// NewImageClient returns the image adapter backed by GPT-4o image.
func NewImageClient(opts Options) *Client {
	return newClient(gpt4oFamily, opts)
}

func newClient(f family, opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.kie.ai"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = f.defaultModel
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.DiscardLogger()
	}
	policy := f.policy
	if opts.Interval > 0 {
		policy.Interval = opts.Interval
	}
	if opts.MaxAttempts > 0 {
		policy.MaxAttempts = opts.MaxAttempts
	}
	return &Client{
		family:     f,
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		model:      model,
		httpClient: httpClient,
		logger:     logger,
		policy:     policy,
	}
}

func (c *Client) Name() string { return c.family.name }

func (c *Client) Kind() domain.Kind { return c.family.kind }

func (c *Client) Policy() providers.PollPolicy { return c.policy }

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool {
	return c.apiKey != ""
}

type envelope struct {
	Code flexInt         `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type submitData struct {
	TaskID string `json:"taskId"`
}

type recordData struct {
	TaskID       string          `json:"taskId"`
	SuccessFlag  *flexInt        `json:"successFlag"`
	Status       string          `json:"status"`
	ErrorMessage string          `json:"errorMessage"`
	ErrorCode    json.RawMessage `json:"errorCode"`
	ResultURLs   json.RawMessage `json:"resultUrls"`
	Response     *struct {
		ResultURLs json.RawMessage `json:"resultUrls"`
		ResultURL  json.RawMessage `json:"resultUrl"`
	} `json:"response"`
}

// Submit creates a remote task and returns its taskId.
func (c *Client) Submit(ctx context.Context, req domain.RequestSpec) (string, error) {
	if !c.HasCredentials() {
		return "", providers.MissingKey(providerName)
	}
	model := c.model
	if req.Model != "" {
		model = req.Model
	}
	httpReq, err := providers.NewJSONRequest(ctx, http.MethodPost, c.baseURL+c.family.generatePath, c.family.payload(model, req))
	if err != nil {
		return "", &providers.Error{Kind: providers.KindValidation, Provider: providerName, Message: err.Error(), Err: err}
	}
	c.authorize(httpReq)

	var data submitData
	if err := c.do(httpReq, &data); err != nil {
		return "", err
	}
	if strings.TrimSpace(data.TaskID) == "" {
		return "", &providers.Error{Kind: providers.KindAPI, Provider: providerName, Message: "empty taskId"}
	}
	c.logger.Debug().
		Str("provider", c.family.name).
		Str("model", model).
		Str("external_job_id", data.TaskID).
		Msg("kie: task submitted")
	return data.TaskID, nil
}

// FetchStatus reads the task record and normalizes successFlag.
func (c *Client) FetchStatus(ctx context.Context, externalJobID string) (providers.Outcome, error) {
	if !c.HasCredentials() {
		return providers.Outcome{}, providers.MissingKey(providerName)
	}
	endpoint := c.baseURL + c.family.recordPath + "?taskId=" + url.QueryEscape(externalJobID)
	httpReq, err := providers.NewJSONRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return providers.Outcome{}, err
	}
	c.authorize(httpReq)

	var data recordData
	if err := c.do(httpReq, &data); err != nil {
		return providers.Outcome{}, err
	}
	if data.SuccessFlag == nil {
		return providers.Pending(), nil
	}

	switch int(*data.SuccessFlag) {
	case flagGenerating:
		return providers.Pending(), nil
	case flagSuccess:
		return providers.Succeeded(data.resultURLs()...), nil
	case flagFailed, flagGenFailed:
		reason := strings.TrimSpace(data.ErrorMessage)
		if reason == "" {
			reason = "generation failed"
		}
		return providers.Failed(reason), nil
	default:
		c.logger.Warn().
			Str("provider", c.family.name).
			Str("external_job_id", externalJobID).
			Int("success_flag", int(*data.SuccessFlag)).
			Msg("kie: unknown successFlag, treating as pending")
		return providers.Pending(), nil
	}
}

func (d recordData) resultURLs() []string {
	if d.Response != nil {
		if urls := providers.ExtractResultURLs(d.Response.ResultURLs); len(urls) > 0 {
			return urls
		}
		if urls := providers.ExtractResultURLs(d.Response.ResultURL); len(urls) > 0 {
			return urls
		}
	}
	return providers.ExtractResultURLs(d.ResultURLs)
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
}

// do runs the request and unwraps the {code,msg,data} envelope. Kie reports
// most failures as HTTP 200 with a non-200 body code.
func (c *Client) do(req *http.Request, out any) error {
	var env envelope
	if err := providers.DoJSON(c.httpClient, providerName, req, &env); err != nil {
		return err
	}
	code := int(env.Code)
	if code != 0 && code != http.StatusOK {
		if code == codeMaintenance {
			return &providers.Error{Kind: providers.KindAPI, StatusCode: code, Provider: providerName, Message: env.Msg}
		}
		if perr := providers.ClassifyStatus(providerName, code, env.Msg); perr != nil {
			return perr
		}
		return &providers.Error{Kind: providers.KindAPI, StatusCode: code, Provider: providerName, Message: env.Msg}
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return &providers.Error{Kind: providers.KindAPI, Provider: providerName, Message: "response without data"}
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &providers.Error{Kind: providers.KindAPI, Provider: providerName, Message: "decode data", Err: err}
	}
	return nil
}

// flexInt accepts both 1 and "1".
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	*f = flexInt(n)
	return nil
}

var _ providers.Adapter = (*Client)(nil)
