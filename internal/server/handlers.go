package server

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"pixelmill/internal/ingest"
	"pixelmill/internal/logging"
	"pixelmill/internal/store"
	"pixelmill/internal/worker"
)

const maxUploadBytes = 16 << 20

type batchResponse struct {
	BatchID        string     `json:"batchId"`
	Status         string     `json:"status"`
	TotalItems     int        `json:"totalItems"`
	ProcessedItems int        `json:"processedItems"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	Items          []itemView `json:"items"`
}

type itemView struct {
	SerialNumber string   `json:"serialNumber"`
	ProductName  string   `json:"productName"`
	InputURLs    []string `json:"inputImageUrls"`
	OutputURLs   []string `json:"outputImageUrls"`
	Status       string   `json:"status"`
	Error        string   `json:"error,omitempty"`
}

type uploadResponse struct {
	BatchID    string `json:"batchId"`
	TotalItems int    `json:"totalItems"`
}

type healthResponse struct {
	Status string         `json:"status"`
	Worker *workerView    `json:"worker,omitempty"`
	Items  itemCountsView `json:"items"`
}

type workerView struct {
	Running   bool             `json:"running"`
	Passes    int              `json:"passes"`
	LastError string           `json:"lastError,omitempty"`
	LastPass  *worker.PassInfo `json:"lastPass,omitempty"`
}

type itemCountsView struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// handleUpload accepts a multipart CSV, registers the batch and its items,
// and returns the batch identifier. Processing happens asynchronously.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, _, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	records, err := ingest.ParseCSV(file)
	if err != nil {
		if errors.Is(err, ingest.ErrEmptyFile) {
			s.writeError(w, http.StatusBadRequest, "uploaded CSV contains no rows")
			return
		}
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid CSV: %v", err))
		return
	}

	ctx := r.Context()
	batch, err := s.store.CreateBatch(ctx, len(records))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to register batch")
		return
	}
	for _, record := range records {
		if _, err := s.store.CreateItem(ctx, batch.ID, record.SerialNumber, record.ProductName, record.SourceURLs); err != nil {
			s.logger.Error("failed to register item",
				logging.String(logging.FieldBatchID, batch.ID),
				logging.Error(err),
			)
			if failErr := s.store.FailBatch(ctx, batch.ID); failErr != nil {
				s.logger.Error("failed to mark batch failed", logging.Error(failErr))
			}
			s.writeError(w, http.StatusInternalServerError, "failed to register batch items")
			return
		}
	}

	s.logger.Info("batch accepted",
		logging.String(logging.FieldBatchID, batch.ID),
		logging.Int("items", len(records)),
	)
	s.writeJSON(w, http.StatusAccepted, uploadResponse{
		BatchID:    batch.ID,
		TotalItems: len(records),
	})
}

type batchSummaryView struct {
	BatchID        string    `json:"batchId"`
	Status         string    `json:"status"`
	TotalItems     int       `json:"totalItems"`
	ProcessedItems int       `json:"processedItems"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// handleBatches lists batches, newest first, optionally filtered by one or
// more status query parameters.
func (s *Server) handleBatches(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var statuses []store.Status
	for _, value := range r.URL.Query()["status"] {
		if strings.TrimSpace(value) == "" {
			continue
		}
		status, ok := store.ParseStatus(value)
		if !ok {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q (valid: %s)", value, statusNames()))
			return
		}
		statuses = append(statuses, status)
	}
	batches, err := s.store.ListBatches(r.Context(), statuses...)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	views := make([]batchSummaryView, 0, len(batches))
	for _, batch := range batches {
		views = append(views, batchSummaryView{
			BatchID:        batch.ID,
			Status:         string(batch.Status),
			TotalItems:     batch.TotalItems,
			ProcessedItems: batch.ProcessedItems,
			CreatedAt:      batch.CreatedAt,
			UpdatedAt:      batch.UpdatedAt,
		})
	}
	s.writeJSON(w, http.StatusOK, map[string][]batchSummaryView{"batches": views})
}

func statusNames() string {
	all := store.AllStatuses()
	names := make([]string, len(all))
	for i, status := range all {
		names[i] = string(status)
	}
	return strings.Join(names, ", ")
}

// handleStatus serves /status/{id} as JSON and /status/{id}/csv as a CSV
// export of the batch.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/status/")
	wantCSV := false
	if strings.HasSuffix(rest, "/csv") {
		wantCSV = true
		rest = strings.TrimSuffix(rest, "/csv")
	}
	if rest == "" || strings.Contains(rest, "/") {
		s.writeError(w, http.StatusNotFound, "batch not found")
		return
	}

	ctx := r.Context()
	batch, err := s.store.GetBatch(ctx, rest)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if batch == nil {
		s.writeError(w, http.StatusNotFound, "batch not found")
		return
	}
	items, err := s.store.ItemsByBatch(ctx, batch.ID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if wantCSV {
		s.writeBatchCSV(w, batch, items)
		return
	}

	resp := batchResponse{
		BatchID:        batch.ID,
		Status:         string(batch.Status),
		TotalItems:     batch.TotalItems,
		ProcessedItems: batch.ProcessedItems,
		CreatedAt:      batch.CreatedAt,
		UpdatedAt:      batch.UpdatedAt,
		Items:          make([]itemView, 0, len(items)),
	}
	for _, item := range items {
		resp.Items = append(resp.Items, itemView{
			SerialNumber: item.SerialNumber,
			ProductName:  item.ProductName,
			InputURLs:    item.SourceURLs,
			OutputURLs:   item.OutputURLs,
			Status:       string(item.Status),
			Error:        item.ErrorMessage,
		})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeBatchCSV(w http.ResponseWriter, batch *store.Batch, items []*store.Item) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "batch_"+batch.ID+".csv"))

	writer := csv.NewWriter(w)
	_ = writer.Write([]string{"S. No.", "Product Name", "Input Image Urls", "Output Image Urls"})
	for _, item := range items {
		_ = writer.Write([]string{
			item.SerialNumber,
			item.ProductName,
			strings.Join(item.SourceURLs, ", "),
			strings.Join(item.OutputURLs, ", "),
		})
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		s.logger.Error("failed to write csv export", logging.Error(err))
	}
}

// handleWebhookEcho is a local receiver for completion notifications, useful
// when no external endpoint is configured yet.
func (s *Server) handleWebhookEcho(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	s.logger.Info("webhook received", logging.String("payload", string(body)))
	s.writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	summary, err := s.store.Health(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := healthResponse{
		Status: "ok",
		Items: itemCountsView{
			Total:      summary.Total,
			Pending:    summary.Pending,
			Processing: summary.Processing,
			Completed:  summary.Completed,
			Failed:     summary.Failed,
		},
	}
	if s.worker != nil {
		info := s.worker.LastPass()
		view := workerView{
			Running:   s.worker.Running(),
			Passes:    s.worker.Passes(),
			LastError: s.worker.LastError(),
		}
		if !info.CompletedAt.IsZero() {
			view.LastPass = &info
		}
		resp.Worker = &view
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
