package api

import "github.com/codeready-toolchain/modelmux/pkg/moderation"

// ErrorResponse is the generic error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// RateLimitedResponse is the 429 body.
type RateLimitedResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter"`
}

// CacheInfo describes the configured cache adapter.
type CacheInfo struct {
	Type string `json:"type"`
	Size int    `json:"size"`
}

// ModerationOverview is the GET /moderation body.
type ModerationOverview struct {
	Metrics moderation.MetricsSnapshot `json:"metrics"`
	Cache   CacheInfo                  `json:"cache"`
}
