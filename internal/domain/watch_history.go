package domain

import "time"

type WatchPosition struct {
	FileID    FileID    `json:"fileId"`
	Position  float64   `json:"position"`
	Duration  float64   `json:"duration"`
	Title     string    `json:"title"`
	UpdatedAt time.Time `json:"updatedAt"`
}
