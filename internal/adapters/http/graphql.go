package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/tilepass/tilepass/internal/core/domain"
)

// buildSchema creates the GraphQL schema wired to our services.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	tileRefType := graphql.NewObject(graphql.ObjectConfig{
		Name: "TileRef",
		Fields: graphql.Fields{
			"z": &graphql.Field{Type: graphql.Int},
			"x": &graphql.Field{Type: graphql.Int},
			"y": &graphql.Field{Type: graphql.Int},
		},
	})

	styleType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Style",
		Fields: graphql.Fields{
			"id":           &graphql.Field{Type: graphql.String},
			"slug":         &graphql.Field{Type: graphql.String},
			"name":         &graphql.Field{Type: graphql.String},
			"source_layer": &graphql.Field{Type: graphql.String},
			"unit":         &graphql.Field{Type: graphql.String},
			"active":       &graphql.Field{Type: graphql.Boolean},
			"distance":     &graphql.Field{Type: graphql.Float},
		},
	})

	sourceType := graphql.NewObject(graphql.ObjectConfig{
		Name: "TileSource",
		Fields: graphql.Fields{
			"id":           &graphql.Field{Type: graphql.String},
			"slug":         &graphql.Field{Type: graphql.String},
			"name":         &graphql.Field{Type: graphql.String},
			"url_template": &graphql.Field{Type: graphql.String},
			"min_zoom":     &graphql.Field{Type: graphql.Int},
			"max_zoom":     &graphql.Field{Type: graphql.Int},
			"active":       &graphql.Field{Type: graphql.Boolean},
		},
	})

	evaluationType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Evaluation",
		Fields: graphql.Fields{
			"style_id": &graphql.Field{Type: graphql.String},
			"tile":     &graphql.Field{Type: tileRefType},
			"value":    &graphql.Field{Type: graphql.Float},
			"unit":     &graphql.Field{Type: graphql.String},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"styles": &graphql.Field{
				Type:        graphql.NewList(styleType),
				Description: "List styles",
				Args: graphql.FieldConfigArgument{
					"active": &graphql.ArgumentConfig{Type: graphql.Boolean, DefaultValue: false},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					active := p.Args["active"].(bool)
					return deps.Styles.List(p.Context, active)
				},
			},
			"style": &graphql.Field{
				Type:        styleType,
				Description: "Get a style by UUID or slug",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id := p.Args["id"].(string)
					return deps.Styles.Resolve(p.Context, id)
				},
			},
			"stylesNear": &graphql.Field{
				Type:        graphql.NewList(styleType),
				Description: "Find styles with a reference geometry near a location",
				Args: graphql.FieldConfigArgument{
					"lat":    &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"lon":    &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"radius": &graphql.ArgumentConfig{Type: graphql.Float, DefaultValue: 1000.0},
					"limit":  &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 20},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					lat := p.Args["lat"].(float64)
					lon := p.Args["lon"].(float64)
					radius := p.Args["radius"].(float64)
					limit := p.Args["limit"].(int)
					return deps.Styles.FindNear(p.Context, lon, lat, radius, limit)
				},
			},
			"sources": &graphql.Field{
				Type:        graphql.NewList(sourceType),
				Description: "List tile sources",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Sources.List(p.Context, false)
				},
			},
			"evaluate": &graphql.Field{
				Type:        evaluationType,
				Description: "Style a single GeoJSON geometry",
				Args: graphql.FieldConfigArgument{
					"style":    &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"geometry": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"zoom":     &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 0},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					style := p.Args["style"].(string)
					geometry := p.Args["geometry"].(string)
					zoom := p.Args["zoom"].(int)
					return deps.Eval.EvaluateFeature(p.Context, style, []byte(geometry), zoom)
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.Context(),
		})

		return c.JSON(result)
	}
}

// Ensure domain types implement field resolvers for graphql-go via struct tags
var _ = domain.Style{}
var _ = domain.TileSource{}
var _ = domain.Evaluation{}
