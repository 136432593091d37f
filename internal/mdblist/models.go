package mdblist

// ListInfo describes an MDBList list as returned by the lists endpoints.
type ListInfo struct {
	ID          int    `json:"id"`
	UserID      int    `json:"user_id"`
	UserName    string `json:"user_name"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
	MediaType   string `json:"mediatype"`
	Items       int    `json:"items"`
	Likes       int    `json:"likes"`
	Dynamic     bool   `json:"dynamic"`
	Private     bool   `json:"private"`
}

// ListItem is one entry of a list's items response.
type ListItem struct {
	ID        int    `json:"id"`
	Rank      int    `json:"rank"`
	Title     string `json:"title"`
	ImdbID    string `json:"imdb_id"`
	MediaType string `json:"mediatype"`
	Error     string `json:"error,omitempty"`
}

// itemsResponse is the paginated items payload for lists addressed by id.
type itemsResponse struct {
	Movies []ListItem `json:"movies"`
	Shows  []ListItem `json:"shows"`
}

// UserInfo reports API usage limits for the configured key.
type UserInfo struct {
	UserID           int    `json:"user_id"`
	APIRequests      int    `json:"api_requests"`
	APIRequestsCount int    `json:"api_requests_count"`
	PatronStatus     string `json:"patron_status"`
}

// ResolvedList is the outcome of resolving a list spec: the desired external
// id set plus whatever list metadata the addressing mode could surface.
type ResolvedList struct {
	IMDBIDs     []string
	MediaTypes  []string
	ListID      int
	Description string
}
