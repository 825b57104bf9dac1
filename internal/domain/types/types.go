// Package types contains common types used across the application
package types

// Entry is one ranked row as served to a presentation layer.
type Entry struct {
	Rank     int    `json:"rank"`
	Identity string `json:"identity"`
	Score    int64  `json:"score"`
}

// Page is a window onto one leaderboard, either the full list or the
// subsequence filtered to a set of identities.
type Page struct {
	List    int     `json:"list"`
	Page    int     `json:"page"`
	Size    int     `json:"size"`
	Total   int     `json:"total"`
	Rank    *int    `json:"rank,omitempty"`
	Entries []Entry `json:"entries"`
}
