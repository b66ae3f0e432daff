package api

import (
	"context"
	"net/http"
	"net/url"
)

const (
	pathAnalyze       = "/api/agent/analyze"
	pathCrawl         = "/api/webcrawl/crawl"
	pathTaskTemplates = "/api/task-templates"
)

// AnalyzePrompt asks the backend agent which modes suit a prompt.
func (c *Client) AnalyzePrompt(ctx context.Context, req *AnalyzeRequest) (*AnalyzeResponse, error) {
	var out AnalyzeResponse
	if err := c.sendJSON(ctx, http.MethodPost, pathAnalyze, nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Crawl runs a web search for the keywords and returns the collected sources.
func (c *Client) Crawl(ctx context.Context, req *WebCrawlRequest) (*WebCrawlResponse, error) {
	var out WebCrawlResponse
	if err := c.sendJSON(ctx, http.MethodPost, pathCrawl, nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) TaskTemplates(ctx context.Context) ([]TaskTemplate, error) {
	var out TaskTemplatesResponse
	if err := c.getJSON(ctx, pathTaskTemplates, nil, &out); err != nil {
		return nil, err
	}
	return out.Templates, nil
}

func (c *Client) TaskTemplate(ctx context.Context, id string) (*TaskTemplate, error) {
	var out TaskTemplate
	if err := c.getJSON(ctx, pathTaskTemplates+"/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) TaskTemplatesByCategory(ctx context.Context, category string) ([]TaskTemplate, error) {
	var out TaskTemplatesResponse
	if err := c.getJSON(ctx, pathTaskTemplates+"/category/"+url.PathEscape(category), nil, &out); err != nil {
		return nil, err
	}
	return out.Templates, nil
}
