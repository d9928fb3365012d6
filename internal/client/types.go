package client

// StartRequest is the body of POST /api/investigate.
type StartRequest struct {
	TenderID  string `json:"tender_id"`
	SessionID string `json:"session_id,omitempty"`
}

// StartResponse names the session the server will stream.
type StartResponse struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// Health mirrors GET /api/health.
type Health struct {
	Status     string  `json:"status"`
	Service    string  `json:"service"`
	Sessions   int     `json:"sessions"`
	Clients    int     `json:"clients"`
	CPUPercent float64 `json:"cpu_percent"`
	MemPercent float64 `json:"mem_percent"`
}
