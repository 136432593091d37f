package emby

import (
	"strings"
	"time"
)

// SystemInfo is the subset of /System/Info used for the startup check.
type SystemInfo struct {
	ServerName string `json:"ServerName"`
	Version    string `json:"Version"`
	ID         string `json:"Id"`
}

// User is an Emby user account.
type User struct {
	ID   string `json:"Id"`
	Name string `json:"Name"`
}

// Collection is a boxset as listed by the server.
type Collection struct {
	ID   string `json:"Id"`
	Name string `json:"Name"`
}

// Item is a library item. Only the fields the reconciliation machinery needs
// are mapped; property updates go through the raw item representation instead
// (see SetItemProperty).
type Item struct {
	ID              string            `json:"Id"`
	Name            string            `json:"Name"`
	Type            string            `json:"Type"`
	SortName        string            `json:"SortName"`
	DateCreated     time.Time         `json:"DateCreated"`
	PremiereDate    time.Time         `json:"PremiereDate"`
	CommunityRating float64           `json:"CommunityRating"`
	ProviderIDs     map[string]string `json:"ProviderIds"`

	// IMDB is the normalized external id. The server reports the provider
	// key as either "Imdb" or "IMDB" depending on how the item was
	// identified; the client resolves that quirk once, here.
	IMDB string `json:"-"`
}

// itemsPage is one page of an items query.
type itemsPage struct {
	Items            []Item `json:"Items"`
	TotalRecordCount int    `json:"TotalRecordCount"`
}

// createCollectionResponse is returned by POST /Collections.
type createCollectionResponse struct {
	ID string `json:"Id"`
}

// normalizeIMDB extracts the IMDB provider id regardless of key casing.
func normalizeIMDB(providerIDs map[string]string) string {
	if id, ok := providerIDs["Imdb"]; ok {
		return id
	}
	if id, ok := providerIDs["IMDB"]; ok {
		return id
	}
	for k, v := range providerIDs {
		if strings.EqualFold(k, "imdb") {
			return v
		}
	}
	return ""
}
