package models

import (
	"time"

	"github.com/google/uuid"
)

// QueryMetric records how one guest question was answered.
type QueryMetric struct {
	ID               int64      `json:"id"`
	OrgID            uuid.UUID  `json:"org_id"`
	SessionID        *uuid.UUID `json:"session_id,omitempty"`
	QueryText        string     `json:"query_text"`
	Category         string     `json:"question_category"`
	SourceType       string     `json:"source_type"`
	ResponseTimeMs   int        `json:"response_time_ms"`
	Success          bool       `json:"success"`
	ErrorMessage     string     `json:"error_message,omitempty"`
	CacheHit         bool       `json:"cache_hit"`
	DetectedLanguage string     `json:"detected_language,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// QueryStats aggregates a tenant's recent query metrics.
type QueryStats struct {
	Total             int            `json:"total"`
	CacheHits         int            `json:"cache_hits"`
	Failures          int            `json:"failures"`
	AvgResponseTimeMs float64        `json:"avg_response_time_ms"`
	BySource          map[string]int `json:"by_source"`
	ByCategory        map[string]int `json:"by_category"`
}
