package http

// Envelope wraps every JSON body the API returns.
type Envelope struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Page is a list payload. Total counts the rows returned, not the rows stored.
type Page struct {
	Rows  any   `json:"rows"`
	Total int64 `json:"total"`
}

// FieldError describes one rejected query parameter.
type FieldError struct {
	Code    string         `json:"code"`
	Field   string         `json:"field,omitempty"`
	Message string         `json:"message"`
	Params  map[string]any `json:"params,omitempty"`
}
