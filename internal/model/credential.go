package model

// Credential is the identity record handed to a consumer when they are
// onboarded. The gateway looks credentials up by access key and never
// mutates them; the identity subsystem owns the records.
type Credential struct {
	UserID    int64  `json:"user_id" db:"user_id"`
	AccessKey string `json:"access_key" db:"access_key"`
	SecretKey string `json:"secret_key" db:"secret_key"`
}

// RateLimitConfig is the per-credential request budget, layered behind the
// gateway-wide token bucket.
type RateLimitConfig struct {
	QPS   float64 `json:"qps"`
	Burst int     `json:"burst"`
}
