package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	domain "github.com/bryanwahyu/automaton-batch/internal/domain/batch"
)

// Client implements the batch Provider port over the OpenAI Batch API.
// Every method is one API call, no retry.
type Client struct {
	api *openai.Client
	log *zap.Logger
}

// NewClient builds a client; an empty baseURL keeps the public endpoint.
func NewClient(apiKey, baseURL string, log *zap.Logger) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return NewClientWithConfig(cfg, log)
}

func NewClientWithConfig(cfg openai.ClientConfig, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{api: openai.NewClientWithConfig(cfg), log: log}
}

// Upload sends the JSONL payload as a batch input file.
func (c *Client) Upload(ctx context.Context, path string) (string, error) {
	f, err := c.api.CreateFile(ctx, openai.FileRequest{
		FileName: filepath.Base(path),
		FilePath: path,
		Purpose:  string(openai.PurposeBatch),
	})
	if err != nil {
		return "", domain.NewExternalError(domain.ErrUpload, classify(err))
	}
	c.log.Debug("batch input uploaded", zap.String("file_id", f.ID), zap.String("path", path))
	return f.ID, nil
}

// Submit creates a batch against the chat completions endpoint.
func (c *Client) Submit(ctx context.Context, inputID string, cfg domain.ModelConfig) (string, error) {
	window := cfg.CompletionWindow
	if window == "" {
		window = domain.DefaultCompletionWindow
	}
	resp, err := c.api.CreateBatch(ctx, openai.CreateBatchRequest{
		InputFileID:      inputID,
		Endpoint:         openai.BatchEndpointChatCompletions,
		CompletionWindow: window,
	})
	if err != nil {
		return "", domain.NewExternalError(domain.ErrSubmission, classify(err))
	}
	return resp.ID, nil
}

// Poll retrieves status, counts and output file ids of a batch.
func (c *Client) Poll(ctx context.Context, batchID string) (domain.PollResult, error) {
	resp, err := c.api.RetrieveBatch(ctx, batchID)
	if err != nil {
		return domain.PollResult{}, domain.NewExternalError(domain.ErrStatusCheck, classify(err))
	}
	st, err := mapStatus(resp.Status)
	if err != nil {
		return domain.PollResult{}, domain.NewExternalError(domain.ErrStatusCheck, err)
	}
	res := domain.PollResult{
		Status:    st,
		Total:     resp.RequestCounts.Total,
		Completed: resp.RequestCounts.Completed,
		Failed:    resp.RequestCounts.Failed,
	}
	if resp.OutputFileID != nil {
		res.ExternalOutputID = *resp.OutputFileID
	}
	if resp.ErrorFileID != nil {
		res.ExternalErrorID = *resp.ErrorFileID
	}
	if resp.Errors != nil {
		for _, e := range resp.Errors.Data {
			res.Errors = append(res.Errors, domain.JobError{Code: e.Code, Message: e.Message})
		}
	}
	return res, nil
}

func (c *Client) Cancel(ctx context.Context, batchID string) error {
	if _, err := c.api.CancelBatch(ctx, batchID); err != nil {
		return domain.NewExternalError(domain.ErrCancellation, classify(err))
	}
	return nil
}

// Download streams a file's content to destPath, replacing it atomically.
func (c *Client) Download(ctx context.Context, fileID, destPath string) error {
	raw, err := c.api.GetFileContent(ctx, fileID)
	if err != nil {
		return domain.NewExternalError(domain.ErrDownload, classify(err))
	}
	defer raw.Close()

	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".download-*")
	if err != nil {
		return fmt.Errorf("create download file: %w", err)
	}
	tmpName := tmp.Name()
	n, err := io.Copy(tmp, raw)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpName)
		return domain.NewExternalError(domain.ErrDownload, err)
	}
	if err := os.Rename(tmpName, destPath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", destPath, err)
	}
	c.log.Debug("batch file downloaded", zap.String("file_id", fileID), zap.String("path", destPath), zap.Int64("bytes", n))
	return nil
}

func mapStatus(s string) (domain.Status, error) {
	switch st := domain.Status(s); st {
	case domain.StatusValidating, domain.StatusInProgress, domain.StatusFinalizing,
		domain.StatusCompleted, domain.StatusFailed, domain.StatusExpired,
		domain.StatusCancelling, domain.StatusCancelled:
		return st, nil
	}
	return "", fmt.Errorf("unknown batch status %q", s)
}

// classify marks rate-limit and quota responses with ErrQuotaExceeded.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %w", domain.ErrQuotaExceeded, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %w", domain.ErrQuotaExceeded, err)
	}
	return err
}
