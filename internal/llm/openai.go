package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"makoto/internal/stream"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
	"github.com/openai/openai-go/v3/shared"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const DefaultImageModel = "dall-e-3"

var ErrNoImage = errors.New("llm: no image returned")

type OpenAIProvider struct {
	client     *openai.Client
	model      string
	imageModel string
}

func NewOpenAI(baseURL, apiKey, model, imageModel string) *OpenAIProvider {
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	opts = append(opts, option.WithHTTPClient(&http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}))
	if imageModel == "" {
		imageModel = DefaultImageModel
	}
	client := openai.NewClient(opts...)
	return &OpenAIProvider{client: &client, model: model, imageModel: imageModel}
}

func (o *OpenAIProvider) ChatStream(ctx context.Context, req ChatRequest, onToken func(string)) (string, error) {
	input := make([]responses.ResponseInputItemUnionParam, 0, len(req.Messages)+1)
	if req.Instructions != "" {
		input = append(input, responses.ResponseInputItemParamOfMessage(req.Instructions, "developer"))
	}
	for _, m := range req.Messages {
		input = append(input, inputMessage(m))
	}

	params := responses.ResponseNewParams{
		Model: shared.ResponsesModel(o.model),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: input,
		},
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.MaxTokens != nil {
		params.MaxOutputTokens = openai.Int(int64(*req.MaxTokens))
	}

	events := o.client.Responses.NewStreaming(ctx, params)

	var text strings.Builder
	for events.Next() {
		event := events.Current()

		switch event.Type {
		case "response.output_text.delta":
			if event.Delta != "" {
				text.WriteString(event.Delta)
				onToken(event.Delta)
			}
		case "response.failed":
			return text.String(), fmt.Errorf("response failed: %s", event.Response.Error.Message)
		}
	}

	if err := events.Err(); err != nil {
		return text.String(), err
	}

	return text.String(), nil
}

func (o *OpenAIProvider) GenerateImage(ctx context.Context, prompt string) (stream.GeneratedImage, error) {
	resp, err := o.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt: prompt,
		Model:  openai.ImageModel(o.imageModel),
		N:      openai.Int(1),
	})
	if err != nil {
		return stream.GeneratedImage{}, fmt.Errorf("generate image: %w", err)
	}
	if len(resp.Data) == 0 {
		return stream.GeneratedImage{}, ErrNoImage
	}

	img := resp.Data[0]
	url := img.URL
	if url == "" && img.B64JSON != "" {
		url = "data:image/png;base64," + img.B64JSON
	}
	if url == "" {
		return stream.GeneratedImage{}, ErrNoImage
	}
	return stream.GeneratedImage{
		URL:       url,
		Prompt:    prompt,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// The role parameter is a typed string, so roles are mapped to literals.
func inputMessage(m Message) responses.ResponseInputItemUnionParam {
	switch m.Role {
	case "assistant":
		return responses.ResponseInputItemParamOfMessage(m.Content, "assistant")
	case "system", "developer":
		return responses.ResponseInputItemParamOfMessage(m.Content, "developer")
	default:
		return responses.ResponseInputItemParamOfMessage(m.Content, "user")
	}
}
