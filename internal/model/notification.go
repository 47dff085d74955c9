package model

// NotificationPayload is the JSON body delivered to the service worker.
type NotificationPayload struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	Icon      string `json:"icon,omitempty"`
	Badge     string `json:"badge,omitempty"`
	URL       string `json:"url,omitempty"`
	Tag       string `json:"tag,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// DispatchRequest is what an admin submits to fan out.
type DispatchRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url"`
	Icon  string `json:"icon"`
}

// DispatchResult summarises a fan-out.
type DispatchResult struct {
	Success bool   `json:"success"`
	Count   int    `json:"count"`
	Total   int    `json:"total"`
	Failed  int    `json:"failed"`
	Pruned  int    `json:"pruned"`
	Message string `json:"message,omitempty"`
}

// DirectResult reports a single-recipient diagnostic send.
type DirectResult struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode,omitempty"`
}
