package models

import "time"

// Pagination describes paging metadata returned alongside list payloads.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// SystemMetrics is a lightweight counter snapshot for the admin dashboard.
type SystemMetrics struct {
	RequestsTotal   uint64    `json:"requests_total"`
	ChainTxTotal    uint64    `json:"chain_tx_total"`
	ChainTxFailures uint64    `json:"chain_tx_failures"`
	Goroutines      int       `json:"goroutines"`
	GeneratedAt     time.Time `json:"generated_at"`
}
