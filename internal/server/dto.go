package server

import (
	"encoding/json"

	"asbuilt/internal/domain"
)

// Response payloads

type RunResponse struct {
	ID           string `json:"id"`
	WellID       string `json:"well_id,omitempty"`
	DocumentRef  string `json:"document_ref,omitempty"`
	Failed       bool   `json:"failed"`
	PlugCount    int    `json:"plug_count"`
	WarningCount int    `json:"warning_count"`
	CreatedAt    string `json:"created_at" format:"date-time"`
}

type RunDetailResponse struct {
	Run    RunResponse   `json:"run"`
	Result domain.Result `json:"result"`
}

type ReconstructResponse struct {
	RunID  string        `json:"run_id"`
	Saved  bool          `json:"saved"`
	Result domain.Result `json:"result"`
}

type EventResponse struct {
	ID      int64          `json:"id"`
	TS      string         `json:"ts" format:"date-time"`
	Type    string         `json:"type"`
	RunID   string         `json:"run_id,omitempty"`
	Payload map[string]any `json:"payload"`
}

type paginatedRuns struct {
	Items      []RunResponse `json:"items"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Conversion helpers

func runResponse(r domain.Run) RunResponse {
	return RunResponse{
		ID:           r.ID,
		WellID:       r.WellID,
		DocumentRef:  r.DocumentRef,
		Failed:       r.Failed,
		PlugCount:    r.PlugCount,
		WarningCount: r.WarningCount,
		CreatedAt:    r.CreatedAt,
	}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:      e.ID,
		TS:      e.TS,
		Type:    e.Type,
		RunID:   e.RunID,
		Payload: decodeJSONMap(e.Payload),
	}
}

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil
	}
	return obj
}
