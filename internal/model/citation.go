package model

import "time"

// Citation is one recorded instance of an external AI answer engine
// referencing content tied to a domain. Immutable once recorded.
type Citation struct {
	ID           string    `json:"id"`
	Platform     string    `json:"platform"`
	ResponseText string    `json:"response_text"`
	URL          string    `json:"url"`
	CitedAt      time.Time `json:"cited_at"`
}
