package model

type Plan struct {
	ID           int64    `json:"id"`
	Name         string   `json:"name"`
	Price        float64  `json:"price"`
	DurationDays int      `json:"durationDays"`
	Active       bool     `json:"active"`
	Features     []string `json:"features"`
}
