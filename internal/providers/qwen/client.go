package qwen

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

// Name is the registry name of the DashScope text-to-image adapter.
const Name = "qwen"

// Options configures the DashScope Qwen client.
type Options struct {
	APIKey         string
	BaseURL        string
	Model          string
	PromptExtend   bool
	Watermark      bool
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
	Interval       time.Duration
	MaxAttempts    int
}

// Client drives the DashScope asynchronous text-to-image task API.
type Client struct {
	apiKey       string
	baseURL      string
	model        string
	promptExtend bool
	watermark    bool
	httpClient   *http.Client
	logger       *infra.Logger
	policy       providers.PollPolicy
}

type synthesisRequest struct {
	Model      string          `json:"model"`
	Input      synthesisInput  `json:"input"`
	Parameters synthesisParams `json:"parameters"`
}

type synthesisInput struct {
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
}

type synthesisParams struct {
	Size         string `json:"size"`
	N            int    `json:"n"`
	PromptExtend *bool  `json:"prompt_extend,omitempty"`
	Watermark    *bool  `json:"watermark,omitempty"`
}

type taskResponse struct {
	Output struct {
		TaskID     string `json:"task_id"`
		TaskStatus string `json:"task_status"`
		Code       string `json:"code"`
		Message    string `json:"message"`
		Results    []struct {
			URL     string `json:"url"`
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"results"`
	} `json:"output"`
	RequestID string `json:"request_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// NewClient constructs a client with defaults applied and injected dependencies.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://dashscope-intl.aliyuncs.com/api/v1"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "qwen-image-plus"
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.DiscardLogger()
	}
	policy := providers.PollPolicy{Interval: 5 * time.Second, MaxAttempts: 60}
	if opts.Interval > 0 {
		policy.Interval = opts.Interval
	}
	if opts.MaxAttempts > 0 {
		policy.MaxAttempts = opts.MaxAttempts
	}
	return &Client{
		apiKey:       strings.TrimSpace(opts.APIKey),
		baseURL:      baseURL,
		model:        model,
		promptExtend: opts.PromptExtend,
		watermark:    opts.Watermark,
		httpClient:   httpClient,
		logger:       logger,
		policy:       policy,
	}
}

func (c *Client) Name() string { return Name }

func (c *Client) Kind() domain.Kind { return domain.KindImage }

func (c *Client) Policy() providers.PollPolicy { return c.policy }

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.model
}

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool {
	return c.apiKey != ""
}

// Submit creates an asynchronous synthesis task and returns its task_id.
func (c *Client) Submit(ctx context.Context, req domain.RequestSpec) (string, error) {
	if !c.HasCredentials() {
		return "", providers.MissingKey(Name)
	}
	model := c.model
	if req.Model != "" {
		model = req.Model
	}
	payload := synthesisRequest{
		Model: model,
		Input: synthesisInput{
			Prompt:         req.Prompt,
			NegativePrompt: req.NegativePrompt,
		},
		Parameters: synthesisParams{
			Size: AspectRatioSize(req.AspectRatio),
			N:    1,
		},
	}
	if extend := c.promptExtend; extend {
		payload.Parameters.PromptExtend = &extend
	}
	watermark := c.watermark
	payload.Parameters.Watermark = &watermark

	httpReq, err := providers.NewJSONRequest(ctx, http.MethodPost, c.baseURL+"/services/aigc/text2image/image-synthesis", payload)
	if err != nil {
		return "", &providers.Error{Kind: providers.KindValidation, Provider: Name, Message: err.Error(), Err: err}
	}
	c.authorize(httpReq)
	httpReq.Header.Set("X-DashScope-Async", "enable")

	var resp taskResponse
	if err := providers.DoJSON(c.httpClient, Name, httpReq, &resp); err != nil {
		return "", err
	}
	if resp.Code != "" {
		return "", &providers.Error{Kind: providers.KindAPI, Provider: Name, Message: resp.Message + " (" + resp.Code + ")"}
	}
	taskID := strings.TrimSpace(resp.Output.TaskID)
	if taskID == "" {
		return "", &providers.Error{Kind: providers.KindAPI, Provider: Name, Message: "empty task_id"}
	}
	c.logger.Debug().
		Str("provider", Name).
		Str("model", model).
		Str("request_id", resp.RequestID).
		Str("external_job_id", taskID).
		Msg("qwen: task submitted")
	return taskID, nil
}

// FetchStatus reads the task and maps task_status to an outcome.
func (c *Client) FetchStatus(ctx context.Context, externalJobID string) (providers.Outcome, error) {
	if !c.HasCredentials() {
		return providers.Outcome{}, providers.MissingKey(Name)
	}
	httpReq, err := providers.NewJSONRequest(ctx, http.MethodGet, c.baseURL+"/tasks/"+url.PathEscape(externalJobID), nil)
	if err != nil {
		return providers.Outcome{}, err
	}
	c.authorize(httpReq)

	var resp taskResponse
	if err := providers.DoJSON(c.httpClient, Name, httpReq, &resp); err != nil {
		return providers.Outcome{}, err
	}

	switch strings.ToUpper(resp.Output.TaskStatus) {
	case "SUCCEEDED":
		var urls []string
		for _, r := range resp.Output.Results {
			if u := providers.ExtractResultURL(r.URL); u != "" {
				urls = append(urls, u)
			}
		}
		return providers.Succeeded(urls...), nil
	case "FAILED", "CANCELED":
		return providers.Failed(failureReason(resp)), nil
	case "UNKNOWN":
		// DashScope reports UNKNOWN once a task id expires.
		return providers.Failed("task expired or unknown"), nil
	default:
		return providers.Pending(), nil
	}
}

func failureReason(resp taskResponse) string {
	if msg := strings.TrimSpace(resp.Output.Message); msg != "" {
		if resp.Output.Code != "" {
			return msg + " (" + resp.Output.Code + ")"
		}
		return msg
	}
	for _, r := range resp.Output.Results {
		if msg := strings.TrimSpace(r.Message); msg != "" {
			return msg
		}
	}
	return "task " + strings.ToLower(resp.Output.TaskStatus)
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
}

var _ providers.Adapter = (*Client)(nil)
