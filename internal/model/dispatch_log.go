package model

import "time"

const (
	DispatchKindBroadcast = "broadcast"
	DispatchKindDirect    = "direct"
)

// DispatchLog records one dispatch run.
type DispatchLog struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Total     int       `json:"total"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Pruned    int       `json:"pruned"`
	CreatedAt time.Time `json:"createdAt"`
}

// DispatchLogFilter describes query parameters for the dispatch history.
type DispatchLogFilter struct {
	Kind      string
	BeginTime *time.Time
	EndTime   *time.Time
	Page      int
	PageSize  int
}

// DispatchLogPage is one page of dispatch history, newest first.
type DispatchLogPage struct {
	Data     []*DispatchLog `json:"data"`
	Total    int            `json:"total"`
	Pages    int            `json:"pages"`
	PageNum  int            `json:"pageNum"`
	PageSize int            `json:"pageSize"`
}
