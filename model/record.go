package model

import "time"

// VisitRecord is the analytics unit persisted to the backing document
// store. Records are append-only: once written their content is the truth
// and they are never updated.
type VisitRecord struct {
	Identifier   string    `json:"identifier"`
	Timestamp    time.Time `json:"timestamp"`
	AnonymizedIP string    `json:"anonymized_ip"`
	UserAgent    string    `json:"user_agent,omitempty"`
	Referrer     string    `json:"referrer,omitempty"`
	ScreenWidth  int       `json:"screen_width,omitempty"`
	ScreenHeight int       `json:"screen_height,omitempty"`
	Timezone     string    `json:"timezone,omitempty"`
	Language     string    `json:"language,omitempty"`
	DeviceType   string    `json:"device_type"`
	Browser      string    `json:"browser"`
	OS           string    `json:"os"`
}

// ContactRecord is a contact-form submission persisted the same way.
type ContactRecord struct {
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Message   string    `json:"message"`
	Intent    string    `json:"intent"`
	Timestamp time.Time `json:"timestamp"`
}

// StoredVisitRecord pairs a parsed record with the identity the backing
// store assigned to it. StoreID is the unit of ownership: exactly one
// stored record per backing document.
type StoredVisitRecord struct {
	StoreID   string      `json:"store_id"`
	URL       string      `json:"url,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
	Record    VisitRecord `json:"record"`
}

type StoredContactRecord struct {
	StoreID   string        `json:"store_id"`
	URL       string        `json:"url,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	Record    ContactRecord `json:"record"`
}

// VisitStats is the per-page aggregate returned alongside a query result.
// Breakdown counts always sum to TotalRecords.
type VisitStats struct {
	TotalRecords     int            `json:"total_records"`
	TotalUniqueUsers int            `json:"total_unique_users"`
	ByDeviceType     map[string]int `json:"by_device_type"`
	ByBrowser        map[string]int `json:"by_browser"`
	ByOS             map[string]int `json:"by_os"`
}
