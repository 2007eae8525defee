// Package equipment exposes scan sessions over HTTP and keeps the equipment
// registration drafts that form-fill sessions write into.
package equipment

import "time"

// Draft is the equipment registration form being filled. Scan sessions only
// fill it; submitting it is up to the operator.
type Draft struct {
	ID        string    `json:"id"`
	RGCode    string    `json:"rg_code"`
	TagCode   string    `json:"tag_code"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
