// Package registryjson demonstrates ingesting a semantic model from JSON
// (spec.md §1/§6 name an external semantic-model-ingestion collaborator as
// out of scope for the compiler itself; this package is that collaborator's
// minimal reference shape, not a general modeling DSL). Grounded on the
// teacher's internal/schema.Database MarshalJSON/UnmarshalJSON pattern: a
// type-aliased struct so the custom methods don't recurse into themselves.
package registryjson

import (
	"encoding/json"

	"github.com/accented-ai/semq/internal/errs"
	"github.com/accented-ai/semq/internal/fragment"
	"github.com/accented-ai/semq/internal/model"
)

// Document is the on-disk JSON shape of a semantic model: an ordered list
// of cubes, each with its table, dimensions, measures, and joins. There is
// no row-level-security or context-dependent SQL support here — those
// require Go closures over model.QueryContext, which JSON cannot encode;
// a cube needing either is defined in Go directly as a model.Cube.
type Document struct {
	Version string    `json:"version"`
	Cubes   []CubeDoc `json:"cubes"`
}

// CubeDoc is one cube: its backing table and its named dimensions,
// measures, and joins.
type CubeDoc struct {
	Name       string         `json:"name"`
	Table      string         `json:"table"`
	Dimensions []DimensionDoc `json:"dimensions,omitempty"`
	Measures   []MeasureDoc   `json:"measures,omitempty"`
	Joins      []JoinDoc      `json:"joins,omitempty"`
}

// DimensionDoc is one dimension: a name, its value type, the column it
// resolves to, and whether it is the cube's primary key.
type DimensionDoc struct {
	Name       string `json:"name"`
	Type       string `json:"type"` // string|number|time|boolean
	Column     string `json:"column"`
	PrimaryKey bool   `json:"primary_key,omitempty"`
}

// MeasureDoc is one measure. Kind "calculated" uses CalculatedSQL instead
// of Column/AggregateType; every other kind names an AggregateType and a
// backing Column.
type MeasureDoc struct {
	Name          string `json:"name"`
	Kind          string `json:"kind"` // aggregate|calculated
	AggregateType string `json:"aggregate_type,omitempty"`
	Column        string `json:"column,omitempty"`
	CalculatedSQL string `json:"calculated_sql,omitempty"`
}

// JoinColumnDoc is one (source, target) column pair of a join's on[] list.
type JoinColumnDoc struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// JoinDoc is one directed join from the owning cube to TargetCube.
type JoinDoc struct {
	TargetCube   string          `json:"target_cube"`
	Relationship string          `json:"relationship"` // belongsTo|hasOne|hasMany|belongsToMany
	On           []JoinColumnDoc `json:"on"`
}

// MarshalJSON renders d with stable indentation, matching the teacher's
// Database.MarshalJSON convention for on-disk semantic-model artifacts.
func (d *Document) MarshalJSON() ([]byte, error) {
	type Alias Document
	return json.MarshalIndent((*Alias)(d), "", "  ") //nolint:wrapcheck
}

// UnmarshalJSON populates d from data.
func (d *Document) UnmarshalJSON(data []byte) error {
	type Alias Document
	return json.Unmarshal(data, (*Alias)(d)) //nolint:wrapcheck
}

// Load parses data as a Document and builds a model.Registry from it.
func Load(data []byte) (*model.Registry, error) {
	var doc Document
	if err := doc.UnmarshalJSON(data); err != nil {
		return nil, errs.WrapError("registryjson.Load", err)
	}

	return doc.Build()
}

// Build converts d into a model.Registry, translating each JSON dimension/
// measure/join into the corresponding model type. Column references always
// resolve via model.Column (a plain identifier, independent of
// QueryContext) since JSON carries no closures.
func (d *Document) Build() (*model.Registry, error) {
	cubes := make([]*model.Cube, 0, len(d.Cubes))

	for _, cd := range d.Cubes {
		cube, err := buildCube(cd)
		if err != nil {
			return nil, err
		}

		cubes = append(cubes, cube)
	}

	reg, err := model.NewRegistry(cubes...)
	if err != nil {
		return nil, errs.WrapError("registryjson.Build", err)
	}

	return reg, nil
}

func buildCube(cd CubeDoc) (*model.Cube, error) {
	table := cd.Table

	cube := &model.Cube{
		Name: cd.Name,
		SQL: model.RelationFunc(func(*model.QueryContext) (model.Relation, error) {
			return model.Relation{From: fragment.Ident(table)}, nil
		}),
		Dimensions: make(map[string]model.Dimension, len(cd.Dimensions)),
		Measures:   make(map[string]model.Measure, len(cd.Measures)),
	}

	for _, dd := range cd.Dimensions {
		dt, err := parseDimensionType(dd.Type)
		if err != nil {
			return nil, errs.New("registryjson.buildCube", cd.Name, dd.Name, err)
		}

		cube.Dimensions[dd.Name] = model.Dimension{
			Name:       dd.Name,
			Type:       dt,
			SQL:        model.Column(dd.Column),
			PrimaryKey: dd.PrimaryKey,
		}
	}

	for _, md := range cd.Measures {
		m, err := buildMeasure(md)
		if err != nil {
			return nil, errs.New("registryjson.buildCube", cd.Name, md.Name, err)
		}

		cube.Measures[md.Name] = m
	}

	for _, jd := range cd.Joins {
		join, err := buildJoin(jd)
		if err != nil {
			return nil, errs.New("registryjson.buildCube", cd.Name, jd.TargetCube, err)
		}

		cube.Joins = append(cube.Joins, join)
	}

	return cube, nil
}

func buildMeasure(md MeasureDoc) (model.Measure, error) {
	if md.Kind == "calculated" {
		return model.Measure{
			Name:          md.Name,
			Kind:          model.KindCalculated,
			CalculatedSQL: md.CalculatedSQL,
		}, nil
	}

	at, err := parseAggregateType(md.AggregateType)
	if err != nil {
		return model.Measure{}, err
	}

	return model.Measure{
		Name:          md.Name,
		Kind:          model.KindAggregate,
		AggregateType: at,
		SQL:           model.Column(md.Column),
	}, nil
}

func buildJoin(jd JoinDoc) (model.CubeJoin, error) {
	rel, err := parseRelationship(jd.Relationship)
	if err != nil {
		return model.CubeJoin{}, err
	}

	on := make([]model.JoinColumn, 0, len(jd.On))
	for _, c := range jd.On {
		on = append(on, model.JoinColumn{SourceColumn: c.Source, TargetColumn: c.Target})
	}

	return model.CubeJoin{TargetCube: jd.TargetCube, Relationship: rel, On: on}, nil
}

func parseDimensionType(s string) (model.DimensionType, error) {
	switch s {
	case "string":
		return model.DimensionString, nil
	case "number":
		return model.DimensionNumber, nil
	case "time":
		return model.DimensionTime, nil
	case "boolean":
		return model.DimensionBoolean, nil
	default:
		return 0, errs.ErrUnknownMember
	}
}

func parseAggregateType(s string) (model.AggregateType, error) {
	switch s {
	case "count":
		return model.Count, nil
	case "countDistinct":
		return model.CountDistinct, nil
	case "sum":
		return model.Sum, nil
	case "avg":
		return model.Avg, nil
	case "min":
		return model.Min, nil
	case "max":
		return model.Max, nil
	case "number":
		return model.Number, nil
	default:
		return 0, errs.ErrUnknownMember
	}
}

func parseRelationship(s string) (model.Relationship, error) {
	switch s {
	case "belongsTo":
		return model.BelongsTo, nil
	case "hasOne":
		return model.HasOne, nil
	case "hasMany":
		return model.HasMany, nil
	case "belongsToMany":
		return model.BelongsToMany, nil
	default:
		return 0, errs.ErrUnknownMember
	}
}
