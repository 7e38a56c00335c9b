package models

import "time"

// ConfigEntry is one persisted configuration record. Keys follow dot
// notation, e.g. "confidence.threshold.click".
type ConfigEntry struct {
	Key         string    `json:"key"`
	Value       any       `json:"value"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// FloatValue returns the entry value as a float64 when it is numeric.
// JSON decoding turns all numbers into float64; string forms are not parsed.
func (c *ConfigEntry) FloatValue() (float64, bool) {
	switch v := c.Value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}
