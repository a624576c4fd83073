package mock

import "time"

// Config represents the mock chirp server configuration
type Config struct {
	Port          int     `json:"port" yaml:"port"`                     // Server port (default: 8080)
	Host          string  `json:"host" yaml:"host"`                     // Server host (default: localhost)
	LatencyMs     int     `json:"latencyMs" yaml:"latencyMs"`           // Base delay added to every API response
	JitterMs      int     `json:"jitterMs" yaml:"jitterMs"`             // Random extra delay in [0, jitterMs)
	FailureRate   float64 `json:"failureRate" yaml:"failureRate"`       // Fraction of API requests answered with 503
	MaxPageSize   int     `json:"maxPageSize" yaml:"maxPageSize"`       // Upper bound for ?limit (default: 100)
	Logging       bool    `json:"logging" yaml:"logging"`               // Keep a ring of recent requests
	Seed          int64   `json:"seed,omitempty" yaml:"seed,omitempty"` // Seed for jitter and failure injection
	MaxTweetChars int     `json:"maxTweetChars" yaml:"maxTweetChars"`   // Tweet length limit (default: 280)
}

// Tweet is a stored tweet
type Tweet struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"authorId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	seq       int64
}

// UserRef is one entry of a followers or following page
type UserRef struct {
	UserID string `json:"userId"`
}

// Pagination is the continuation block of every list response
type Pagination struct {
	NextCursor *string `json:"nextCursor"`
	HasMore    bool    `json:"hasMore"`
}

// Page is the envelope of every list response
type Page[T any] struct {
	Data       []T        `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// RequestLog represents a logged request
type RequestLog struct {
	Timestamp time.Time     `json:"timestamp"`
	Method    string        `json:"method"`
	Path      string        `json:"path"`
	UserID    string        `json:"userId"`
	Status    int           `json:"status"`
	Injected  bool          `json:"injected"`
	Duration  time.Duration `json:"duration"`
}

// Stats summarizes the store contents
type Stats struct {
	Users    int `json:"users"`
	Tweets   int `json:"tweets"`
	Follows  int `json:"follows"`
	Requests int `json:"requests"`
}
