package models

// PingResponse answers the ping tool and GET /ping.
type PingResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Build     string `json:"build"`
	Timestamp string `json:"timestamp"`
}

// HealthResponse answers GET /health.
type HealthResponse struct {
	Status          string `json:"status"`
	Service         string `json:"service"`
	Version         string `json:"version"`
	UptimeSeconds   int64  `json:"uptime_seconds"`
	StorageWritable bool   `json:"storage_writable"`
}

// ServiceIdentity answers GET /.
type ServiceIdentity struct {
	Service   string   `json:"service"`
	Version   string   `json:"version"`
	Endpoints []string `json:"endpoints"`
}

// AntidetectionSnapshot is the applied configuration returned by
// set_antidetection. RespectRobotsTxt is reported for transparency and is
// not settable through the tool.
type AntidetectionSnapshot struct {
	Success          bool    `json:"success"`
	Profile          string  `json:"profile"`
	RateLimitDelay   float64 `json:"rate_limit_delay"`
	MaxResponseChars int     `json:"max_response_chars"`
	RespectRobotsTxt bool    `json:"respect_robots_txt"`
	UserAgent        string  `json:"user_agent,omitempty"`
}
