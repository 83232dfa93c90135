package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	sharedhttp "github.com/scoutline/discovery/pkg/shared/http"
)

// LocalAIJudge is the cheap tier: an OpenAI-compatible chat-completion
// endpoint, mirroring the teacher's pkg/slm LocalAI client shape.
type LocalAIJudge struct {
	endpoint   string
	model      string
	httpClient *http.Client
	costPerCall float64
}

// NewLocalAIJudge constructs the cheap tier backend.
func NewLocalAIJudge(endpoint, model string, httpClient *http.Client, costPerCall float64) *LocalAIJudge {
	if httpClient == nil {
		httpClient = sharedhttp.NewClient(sharedhttp.LLMClientConfig(60 * time.Second))
	}
	return &LocalAIJudge{endpoint: endpoint, model: model, httpClient: httpClient, costPerCall: costPerCall}
}

type chatCompletionRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (j *LocalAIJudge) Judge(ctx context.Context, prompt string) (Response, error) {
	reqBody := chatCompletionRequest{Model: j.model}
	reqBody.Messages = append(reqBody.Messages, struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}{Role: "user", Content: prompt})

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return Response{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.endpoint+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return Response{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := j.httpClient.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return Response{}, fmt.Errorf("llm: local endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var out chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Response{}, err
	}
	if len(out.Choices) == 0 {
		return Response{}, fmt.Errorf("llm: local endpoint returned no choices")
	}

	return Response{
		Text:         out.Choices[0].Message.Content,
		InputTokens:  out.Usage.PromptTokens,
		OutputTokens: out.Usage.CompletionTokens,
		CostUSD:      j.costPerCall,
		ModelID:      j.model,
	}, nil
}

// AnthropicJudge is the mid tier.
type AnthropicJudge struct {
	client      anthropic.Client
	model       anthropic.Model
	maxTokens   int64
	usdPerInput float64
	usdPerOutput float64
}

// NewAnthropicJudge constructs the mid tier backend.
func NewAnthropicJudge(apiKey, model string, maxTokens int64, usdPerInputToken, usdPerOutputToken float64) *AnthropicJudge {
	return &AnthropicJudge{
		client:       anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:        anthropic.Model(model),
		maxTokens:    maxTokens,
		usdPerInput:  usdPerInputToken,
		usdPerOutput: usdPerOutputToken,
	}
}

func (j *AnthropicJudge) Judge(ctx context.Context, prompt string) (Response, error) {
	msg, err := j.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     j.model,
		MaxTokens: j.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return Response{}, fmt.Errorf("llm: anthropic call failed: %w", err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	input := int(msg.Usage.InputTokens)
	output := int(msg.Usage.OutputTokens)
	return Response{
		Text:         text,
		InputTokens:  input,
		OutputTokens: output,
		CostUSD:      float64(input)*j.usdPerInput + float64(output)*j.usdPerOutput,
		ModelID:      string(j.model),
	}, nil
}

// BedrockJudge is the expensive tier, used only for ACCEPT lock-in
// validation (spec §4.C7).
type BedrockJudge struct {
	client      *bedrockruntime.Client
	modelID     string
	maxTokens   int
	usdPerInput float64
	usdPerOutput float64
}

// NewBedrockJudge constructs the expensive tier backend.
func NewBedrockJudge(client *bedrockruntime.Client, modelID string, maxTokens int, usdPerInputToken, usdPerOutputToken float64) *BedrockJudge {
	return &BedrockJudge{client: client, modelID: modelID, maxTokens: maxTokens, usdPerInput: usdPerInputToken, usdPerOutput: usdPerOutputToken}
}

type bedrockAnthropicRequest struct {
	AnthropicVersion string `json:"anthropic_version"`
	MaxTokens        int    `json:"max_tokens"`
	Messages         []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

type bedrockAnthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (j *BedrockJudge) Judge(ctx context.Context, prompt string) (Response, error) {
	reqBody := bedrockAnthropicRequest{AnthropicVersion: "bedrock-2023-05-31", MaxTokens: j.maxTokens}
	reqBody.Messages = append(reqBody.Messages, struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}{Role: "user", Content: prompt})

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return Response{}, err
	}

	out, err := j.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(j.modelID),
		ContentType: aws.String("application/json"),
		Body:        payload,
	})
	if err != nil {
		return Response{}, fmt.Errorf("llm: bedrock invoke failed: %w", err)
	}

	var resp bedrockAnthropicResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return Response{}, err
	}

	var text string
	for _, c := range resp.Content {
		if c.Type == "text" {
			text += c.Text
		}
	}

	return Response{
		Text:         text,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		CostUSD:      float64(resp.Usage.InputTokens)*j.usdPerInput + float64(resp.Usage.OutputTokens)*j.usdPerOutput,
		ModelID:      j.modelID,
	}, nil
}
