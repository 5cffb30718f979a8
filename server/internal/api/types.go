package api

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	Status string `json:"status"`
	Shards int    `json:"shards"`
	Keys   int    `json:"keys"`
}

// KeysResponse is the payload for GET /api/v1/keys.
type KeysResponse struct {
	Keys []string `json:"keys"`
}

// EntryResponse is one key/value pair, returned by GET /api/v1/kv/{key} and
// as an element of ScanResponse.
type EntryResponse struct {
	Key       string `json:"key"`
	Value     string `json:"value"`
	ExpiresAt string `json:"expires_at,omitempty"` // RFC3339Nano; absent when the entry never expires
	Shard     *int   `json:"shard,omitempty"`
}

// SetResponse is the payload for PUT /api/v1/kv/{key}.
type SetResponse struct {
	Key       string `json:"key"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

// DeleteResponse is the payload for DELETE /api/v1/kv/{key}.
type DeleteResponse struct {
	Deleted bool `json:"deleted"`
}

// ScanResponse is the payload for GET /api/v1/scan.
type ScanResponse struct {
	Entries []EntryResponse `json:"entries"`
	// Truncated is true when more entries matched than limit allowed.
	Truncated bool `json:"truncated"`
}

// PublishResponse is the payload for POST /api/v1/publish/{key}.
type PublishResponse struct {
	Receivers int `json:"receivers"`
}

// errorResponse is the standard JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
