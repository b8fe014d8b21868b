package domain

import (
	"encoding/json"
	"time"
)

// Style is a named styling rule built around a single expression. The
// expression is kept in its raw array form and compiled on demand.
type Style struct {
	ID          string          `json:"id"`
	Slug        string          `json:"slug"`
	Name        string          `json:"name"`
	SourceLayer string          `json:"source_layer,omitempty"` // empty styles every layer
	Expression  json.RawMessage `json:"expression"`
	Unit        string          `json:"unit,omitempty"`      // derived from the expression
	Reference   json.RawMessage `json:"reference,omitempty"` // derived reference geometry
	Active      bool            `json:"active"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Distance    *float64        `json:"distance,omitempty"` // computed field
}

// TileSource is a vector-tile endpoint that styles are evaluated against.
type TileSource struct {
	ID          string    `json:"id"`
	Slug        string    `json:"slug"`
	Name        string    `json:"name"`
	URLTemplate string    `json:"url_template"`
	MinZoom     int       `json:"min_zoom"`
	MaxZoom     int       `json:"max_zoom"`
	Bounds      *Bounds   `json:"bounds,omitempty"`
	Attribution string    `json:"attribution,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

// StyledFeature is one feature's styling result.
type StyledFeature struct {
	FeatureID uint64  `json:"feature_id,omitempty"`
	Layer     string  `json:"layer"`
	Value     float64 `json:"value"`
}

// StyledTile is the result of evaluating a style against every supported
// feature in one tile. Features whose geometry the expression cannot
// handle are counted as skipped; per-feature evaluation failures are
// counted as errors and do not abort the tile.
type StyledTile struct {
	StyleID  string          `json:"style_id"`
	Source   string          `json:"source"`
	Tile     TileRef         `json:"tile"`
	Unit     string          `json:"unit"`
	Features []StyledFeature `json:"features"`
	Skipped  int             `json:"skipped"`
	Errors   int             `json:"errors"`
	StyledAt time.Time       `json:"styled_at"`
}

// StyledTileRecord is bookkeeping for one styled tile, kept so a style
// update can find the tiles that need restyling.
type StyledTileRecord struct {
	StyleID      string    `json:"style_id"`
	Source       string    `json:"source"`
	Tile         TileRef   `json:"tile"`
	FeatureCount int       `json:"feature_count"`
	Skipped      int       `json:"skipped"`
	Errors       int       `json:"errors"`
	StyledAt     time.Time `json:"styled_at"`
}

// Evaluation is the result of styling a single ad-hoc feature.
type Evaluation struct {
	StyleID string  `json:"style_id"`
	Tile    TileRef `json:"tile"`
	Value   float64 `json:"value"`
	Unit    string  `json:"unit"`
}

// Style event types published on the broker.
const (
	StyleEventUpdated = "updated"
	StyleEventDeleted = "deleted"
)

// StyleEvent signals that a style changed and tiles styled with it are
// stale.
type StyleEvent struct {
	Type    string    `json:"type"`
	StyleID string    `json:"style_id"`
	Slug    string    `json:"slug"`
	At      time.Time `json:"at"`
}
