package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

type apiClient struct {
	baseURL string
	http    *http.Client
}

type batchSummary struct {
	BatchID        string    `json:"batchId"`
	Status         string    `json:"status"`
	TotalItems     int       `json:"totalItems"`
	ProcessedItems int       `json:"processedItems"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type batchDetail struct {
	batchSummary
	Items []batchItem `json:"items"`
}

type batchItem struct {
	SerialNumber string   `json:"serialNumber"`
	ProductName  string   `json:"productName"`
	InputURLs    []string `json:"inputImageUrls"`
	OutputURLs   []string `json:"outputImageUrls"`
	Status       string   `json:"status"`
	Error        string   `json:"error,omitempty"`
}

type healthReport struct {
	Status string `json:"status"`
	Worker *struct {
		Running   bool   `json:"running"`
		Passes    int    `json:"passes"`
		LastError string `json:"lastError,omitempty"`
		LastPass  *struct {
			CompletedAt time.Time `json:"completedAt"`
			Discovered  int       `json:"discovered"`
			Failures    int       `json:"failures"`
		} `json:"lastPass,omitempty"`
	} `json:"worker,omitempty"`
	Items struct {
		Total      int `json:"total"`
		Pending    int `json:"pending"`
		Processing int `json:"processing"`
		Completed  int `json:"completed"`
		Failed     int `json:"failed"`
	} `json:"items"`
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *apiClient) getJSON(path string, out any) error {
	resp, err := c.http.Get(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return c.errorFrom(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// UploadCSV submits a product CSV and returns the accepted batch ID.
func (c *apiClient) UploadCSV(path string) (string, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("open csv: %w", err)
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", 0, fmt.Errorf("build upload: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", 0, fmt.Errorf("read csv: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", 0, fmt.Errorf("build upload: %w", err)
	}

	resp, err := c.http.Post(c.baseURL+"/upload", writer.FormDataContentType(), &buf)
	if err != nil {
		return "", 0, fmt.Errorf("upload csv: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		return "", 0, c.errorFrom(resp)
	}
	var accepted struct {
		BatchID    string `json:"batchId"`
		TotalItems int    `json:"totalItems"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&accepted); err != nil {
		return "", 0, fmt.Errorf("decode upload response: %w", err)
	}
	return accepted.BatchID, accepted.TotalItems, nil
}

// BatchStatus retrieves a batch with its items.
func (c *apiClient) BatchStatus(batchID string) (*batchDetail, error) {
	var detail batchDetail
	if err := c.getJSON("/status/"+batchID, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// BatchCSV streams the CSV export for a batch to the writer.
func (c *apiClient) BatchCSV(batchID string, out io.Writer) error {
	resp, err := c.http.Get(c.baseURL + "/status/" + batchID + "/csv")
	if err != nil {
		return fmt.Errorf("request csv export: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return c.errorFrom(resp)
	}
	_, err = io.Copy(out, resp.Body)
	return err
}

// ListBatches fetches known batches, optionally filtered by status.
func (c *apiClient) ListBatches(statuses ...string) ([]batchSummary, error) {
	path := "/batches"
	if len(statuses) > 0 {
		query := url.Values{}
		for _, status := range statuses {
			query.Add("status", status)
		}
		path += "?" + query.Encode()
	}
	var payload struct {
		Batches []batchSummary `json:"batches"`
	}
	if err := c.getJSON(path, &payload); err != nil {
		return nil, err
	}
	return payload.Batches, nil
}

// Health fetches daemon health and item counts.
func (c *apiClient) Health() (*healthReport, error) {
	var report healthReport
	if err := c.getJSON("/healthz", &report); err != nil {
		return nil, err
	}
	return &report, nil
}

func (c *apiClient) errorFrom(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&payload); err == nil && payload.Error != "" {
		return fmt.Errorf("daemon responded %d: %s", resp.StatusCode, payload.Error)
	}
	return fmt.Errorf("daemon responded %d", resp.StatusCode)
}
