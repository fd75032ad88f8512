package api

// ModerationRequest is the POST /moderation body.
type ModerationRequest struct {
	Message string `json:"message" binding:"required"`
	Locale  string `json:"locale"`
	Stream  bool   `json:"stream"`
}
