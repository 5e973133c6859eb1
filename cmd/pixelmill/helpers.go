package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

func printJSON(out io.Writer, payload any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(payload)
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return "-"
	}
	return value.Local().Format("2006-01-02 15:04:05")
}

func formatProgress(processed, total int) string {
	return fmt.Sprintf("%d/%d", processed, total)
}

func truncateList(values []string, limit int) string {
	if len(values) == 0 {
		return "-"
	}
	joined := strings.Join(values, ", ")
	if len(joined) <= limit {
		return joined
	}
	return joined[:limit-3] + "..."
}
