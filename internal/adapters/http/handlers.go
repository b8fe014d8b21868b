package http

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/tilepass/tilepass/internal/core/domain"
	"github.com/tilepass/tilepass/internal/pkg/metrics"
)

// StylingStats holds row counts from the styling tables.
type StylingStats struct {
	Styles       int    `json:"styles"`
	ActiveStyles int    `json:"active_styles"`
	Sources      int    `json:"sources"`
	StyledTiles  int    `json:"styled_tiles"`
	LastStyled   string `json:"last_styled,omitempty"`
}

// StylingStatsHandler returns row counts from the styling tables.
func StylingStatsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.DB == nil {
			return errInternal(c, "database not available")
		}

		var stats StylingStats
		row := deps.DB.Pool.QueryRow(c.Context(), `
			SELECT
				(SELECT count(*) FROM styles),
				(SELECT count(*) FROM styles WHERE active),
				(SELECT count(*) FROM tile_sources),
				(SELECT count(*) FROM styled_tiles),
				COALESCE((SELECT max(styled_at)::text FROM styled_tiles), '')
		`)
		if err := row.Scan(&stats.Styles, &stats.ActiveStyles, &stats.Sources,
			&stats.StyledTiles, &stats.LastStyled); err != nil {
			return errInternal(c, err.Error())
		}

		c.Set("Cache-Control", "public, max-age=60")
		return c.JSON(stats)
	}
}

// ListStylesHandler returns all styles, optionally only active ones.
func ListStylesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		styles, err := deps.Styles.List(c.Context(), c.QueryBool("active", false))
		if err != nil {
			return errInternal(c, err.Error())
		}

		// Apply offset/limit pagination on the full list
		offset := c.QueryInt("offset", 0)
		limit := c.QueryInt("limit", 100)
		if offset < 0 {
			offset = 0
		}
		if limit <= 0 || limit > 200 {
			limit = 100
		}

		total := len(styles)
		if offset >= total {
			styles = nil
		} else {
			end := offset + limit
			if end > total {
				end = total
			}
			styles = styles[offset:end]
		}

		pg := Pagination{Offset: offset, Limit: limit, Total: total}
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: styles, Pagination: pg})
	}
}

// CreateStyleHandler registers a new style. The expression is compiled
// during validation, so authoring mistakes surface with the parser's
// own message.
func CreateStyleHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var style domain.Style
		if err := c.BodyParser(&style); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if err := deps.Styles.Create(c.Context(), &style); err != nil {
			return errBadRequest(c, err.Error())
		}
		return c.Status(201).JSON(style)
	}
}

// GetStyleHandler returns a single style by UUID or slug.
func GetStyleHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "style id is required")
		}
		style, err := deps.Styles.Resolve(c.Context(), id)
		if err != nil {
			return errNotFound(c, "style not found")
		}
		return c.JSON(style)
	}
}

// StyleExpressionHandler returns the canonical serialized form of a
// style's expression. The serialized form omits the unit, so it parses
// back with the default.
func StyleExpressionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "style id is required")
		}
		style, err := deps.Styles.Resolve(c.Context(), id)
		if err != nil {
			return errNotFound(c, "style not found")
		}
		serialized, err := deps.Styles.Serialized(style)
		if err != nil {
			return errInternal(c, err.Error())
		}
		c.Set("Cache-Control", "public, max-age=600")
		return c.JSON(fiber.Map{
			"style_id":   style.ID,
			"expression": serialized,
			"unit":       style.Unit,
		})
	}
}

// UpdateStyleHandler replaces an existing style.
func UpdateStyleHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "style id is required")
		}
		var style domain.Style
		if err := c.BodyParser(&style); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		style.ID = id
		if err := deps.Styles.Update(c.Context(), &style); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return errNotFound(c, "style not found")
			}
			return errBadRequest(c, err.Error())
		}
		return c.JSON(style)
	}
}

// DeleteStyleHandler removes a style.
func DeleteStyleHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "style id is required")
		}
		if err := deps.Styles.Delete(c.Context(), id); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return errNotFound(c, "style not found")
			}
			return errInternal(c, err.Error())
		}
		return c.SendStatus(204)
	}
}

// NearbyStylesHandler returns styles whose reference geometry lies near
// a point.
func NearbyStylesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		lat := c.QueryFloat("lat", 0)
		lon := c.QueryFloat("lon", 0)
		radius := c.QueryFloat("radius", 1000)
		limit := c.QueryInt("limit", 20)

		if lat == 0 || lon == 0 {
			return errBadRequest(c, "lat and lon are required")
		}
		if radius <= 0 || radius > 100000 {
			return errBadRequest(c, "radius must be between 1 and 100000 meters")
		}
		if limit <= 0 || limit > 50 {
			limit = 20
		}

		styles, err := deps.Styles.FindNear(c.Context(), lon, lat, radius, limit)
		if err != nil {
			return errInternal(c, err.Error())
		}

		c.Set("Cache-Control", "public, max-age=300")
		return c.JSON(styles)
	}
}

// EvaluateStyleHandler styles a single ad-hoc GeoJSON geometry.
// POST /v1/styles/:id/evaluate {"geometry":{...},"zoom":14}
func EvaluateStyleHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "style id is required")
		}

		var req struct {
			Geometry json.RawMessage `json:"geometry"`
			Zoom     int             `json:"zoom"`
		}
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if len(req.Geometry) == 0 {
			return errBadRequest(c, "geometry is required")
		}

		start := time.Now()
		eval, err := deps.Eval.EvaluateFeature(c.Context(), id, req.Geometry, req.Zoom)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return errNotFound(c, "style not found")
			}
			return errBadRequest(c, err.Error())
		}
		metrics.EvalDuration.WithLabelValues("feature").Observe(time.Since(start).Seconds())

		return c.JSON(eval)
	}
}

// ValidateExpressionHandler compiles an expression without storing it.
// Authoring mistakes come back with the parser's own message; a valid
// expression comes back in its canonical serialized form. A geometry in
// the body is additionally styled with the expression.
// POST /v1/validate {"expression":[...],"geometry":{...},"zoom":14}
func ValidateExpressionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req struct {
			Expression json.RawMessage `json:"expression"`
			Geometry   json.RawMessage `json:"geometry"`
			Zoom       int             `json:"zoom"`
		}
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if len(req.Expression) == 0 {
			return errBadRequest(c, "expression is required")
		}

		serialized, unit, err := deps.Styles.Validate(req.Expression)
		if err != nil {
			return errBadRequest(c, err.Error())
		}

		resp := fiber.Map{
			"valid":      true,
			"expression": serialized,
			"unit":       unit,
		}
		if len(req.Geometry) > 0 {
			eval, err := deps.Eval.EvaluateExpression(c.Context(), req.Expression, req.Geometry, req.Zoom)
			if err != nil {
				return errBadRequest(c, err.Error())
			}
			resp["value"] = eval.Value
			resp["tile"] = eval.Tile
		}
		return c.JSON(resp)
	}
}

// StyleTileHandler evaluates a style against one vector tile.
// GET /v1/styles/:id/tiles/:source/:z/:x/:y
func StyleTileHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		source := c.Params("source")
		z, errZ := c.ParamsInt("z")
		x, errX := c.ParamsInt("x")
		y, errY := c.ParamsInt("y")
		if errZ != nil || errX != nil || errY != nil || z < 0 || x < 0 || y < 0 {
			return errBadRequest(c, "tile coordinates must be non-negative integers")
		}

		ref := domain.TileRef{Z: uint32(z), X: uint32(x), Y: uint32(y)}
		start := time.Now()
		st, err := deps.Eval.EvaluateTile(c.Context(), id, source, ref)
		if err != nil {
			switch {
			case errors.Is(err, pgx.ErrNoRows):
				return errNotFound(c, "style or source not found")
			case strings.Contains(err.Error(), "invalid tile"),
				strings.Contains(err.Error(), "outside source range"):
				return errBadRequest(c, err.Error())
			case strings.Contains(err.Error(), "tile not found"):
				return errNotFound(c, err.Error())
			default:
				return errInternal(c, err.Error())
			}
		}
		metrics.EvalDuration.WithLabelValues("tile").Observe(time.Since(start).Seconds())

		c.Set("Cache-Control", "public, max-age=300")
		return c.JSON(st)
	}
}

// RestyleStyleHandler re-evaluates the tiles recently styled with a
// style and broadcasts the fresh results.
// POST /v1/styles/:id/restyle?hours=1&limit=100
func RestyleStyleHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "style id is required")
		}
		hours := c.QueryInt("hours", 1)
		if hours <= 0 || hours > 168 {
			hours = 1
		}
		limit := c.QueryInt("limit", 100)
		if limit <= 0 || limit > 1000 {
			limit = 100
		}

		style, err := deps.Styles.Resolve(c.Context(), id)
		if err != nil {
			return errNotFound(c, "style not found")
		}

		restyled, err := deps.Eval.RestyleRecent(c.Context(), style.ID, time.Duration(hours)*time.Hour, limit)
		if err != nil {
			return errInternal(c, err.Error())
		}
		return c.JSON(fiber.Map{
			"style_id": style.ID,
			"restyled": restyled,
		})
	}
}

// LegacyEvaluateHandler accepts the pre-1.0 evaluate body with the
// style named in the payload. Kept for older clients; new clients use
// POST /v1/styles/{id}/evaluate.
func LegacyEvaluateHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req struct {
			Style    string          `json:"style"`
			Geometry json.RawMessage `json:"geometry"`
			Zoom     int             `json:"zoom"`
		}
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if req.Style == "" {
			return errBadRequest(c, "style is required")
		}
		if len(req.Geometry) == 0 {
			return errBadRequest(c, "geometry is required")
		}

		eval, err := deps.Eval.EvaluateFeature(c.Context(), req.Style, req.Geometry, req.Zoom)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return errNotFound(c, "style not found")
			}
			return errBadRequest(c, err.Error())
		}
		return c.JSON(eval)
	}
}

// ListSourcesHandler returns all tile sources.
func ListSourcesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sources, err := deps.Sources.List(c.Context(), c.QueryBool("active", false))
		if err != nil {
			return errInternal(c, err.Error())
		}

		// Apply offset/limit pagination
		offset := c.QueryInt("offset", 0)
		limit := c.QueryInt("limit", 100)
		if offset < 0 {
			offset = 0
		}
		if limit <= 0 || limit > 200 {
			limit = 100
		}

		total := len(sources)
		if offset >= total {
			sources = nil
		} else {
			end := offset + limit
			if end > total {
				end = total
			}
			sources = sources[offset:end]
		}

		pg := Pagination{Offset: offset, Limit: limit, Total: total}
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: sources, Pagination: pg})
	}
}

// CreateSourceHandler registers a new tile source.
func CreateSourceHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var source domain.TileSource
		if err := c.BodyParser(&source); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if err := deps.Sources.Create(c.Context(), &source); err != nil {
			return errBadRequest(c, err.Error())
		}
		return c.Status(201).JSON(source)
	}
}

// GetSourceHandler returns a single tile source by slug.
func GetSourceHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		slug := c.Params("slug")
		if slug == "" {
			return errBadRequest(c, "source slug is required")
		}
		source, err := deps.Sources.GetBySlug(c.Context(), slug)
		if err != nil {
			return errNotFound(c, "source not found")
		}
		return c.JSON(source)
	}
}

// StyleStatsHandler returns styling activity for a single style.
func StyleStatsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "style id is required")
		}

		style, err := deps.Styles.Resolve(c.Context(), id)
		if err != nil {
			return errNotFound(c, "style not found")
		}

		if deps.DB == nil {
			return errInternal(c, "database not available")
		}

		var stats struct {
			Tiles      int    `json:"tiles"`
			Features   int    `json:"features"`
			Skipped    int    `json:"skipped"`
			Errors     int    `json:"errors"`
			LastStyled string `json:"last_styled"`
		}

		row := deps.DB.Pool.QueryRow(c.Context(), `
            SELECT
                (SELECT count(*) FROM styled_tiles WHERE style_id = $1),
                COALESCE((SELECT sum(feature_count) FROM styled_tiles WHERE style_id = $1), 0),
                COALESCE((SELECT sum(skipped) FROM styled_tiles WHERE style_id = $1), 0),
                COALESCE((SELECT sum(errors) FROM styled_tiles WHERE style_id = $1), 0),
                COALESCE((SELECT max(styled_at)::text FROM styled_tiles WHERE style_id = $1), '')
        `, style.ID)
		if err := row.Scan(&stats.Tiles, &stats.Features, &stats.Skipped, &stats.Errors, &stats.LastStyled); err != nil {
			return errInternal(c, err.Error())
		}

		c.Set("Cache-Control", "public, max-age=300")
		return c.JSON(fiber.Map{
			"style": style,
			"stats": stats,
		})
	}
}

// StyleTilesHandler returns the tiles recently styled with a style,
// newest first.
func StyleTilesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if id == "" {
			return errBadRequest(c, "style id is required")
		}

		style, err := deps.Styles.Resolve(c.Context(), id)
		if err != nil {
			return errNotFound(c, "style not found")
		}

		if deps.DB == nil {
			return errInternal(c, "database not available")
		}

		limit := c.QueryInt("limit", 50)
		if limit <= 0 || limit > 500 {
			limit = 50
		}

		rows, err := deps.DB.Pool.Query(c.Context(), `
            SELECT source, z, x, y, feature_count, skipped, errors, styled_at
            FROM styled_tiles
            WHERE style_id = $1
            ORDER BY styled_at DESC
            LIMIT $2
        `, style.ID, limit)
		if err != nil {
			return errInternal(c, err.Error())
		}
		defer rows.Close()

		type styledTile struct {
			Source       string    `json:"source"`
			Z            int       `json:"z"`
			X            int       `json:"x"`
			Y            int       `json:"y"`
			FeatureCount int       `json:"feature_count"`
			Skipped      int       `json:"skipped"`
			Errors       int       `json:"errors"`
			StyledAt     time.Time `json:"styled_at"`
		}

		var tiles []styledTile
		for rows.Next() {
			var t styledTile
			if err := rows.Scan(&t.Source, &t.Z, &t.X, &t.Y, &t.FeatureCount, &t.Skipped, &t.Errors, &t.StyledAt); err != nil {
				return errInternal(c, err.Error())
			}
			tiles = append(tiles, t)
		}

		c.Set("Cache-Control", "public, max-age=60")
		return c.JSON(tiles)
	}
}
