package registryjson_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/accented-ai/semq/internal/registryjson"
)

const sampleDoc = `{
  "version": "1.0",
  "cubes": [
    {
      "name": "Orders",
      "table": "orders",
      "dimensions": [
        {"name": "id", "type": "number", "column": "orders.id", "primary_key": true},
        {"name": "status", "type": "string", "column": "orders.status"}
      ],
      "measures": [
        {"name": "count", "kind": "aggregate", "aggregate_type": "count", "column": "orders.id"}
      ],
      "joins": [
        {"target_cube": "LineItems", "relationship": "hasMany", "on": [{"source": "id", "target": "order_id"}]}
      ]
    },
    {
      "name": "LineItems",
      "table": "line_items",
      "dimensions": [
        {"name": "order_id", "type": "number", "column": "line_items.order_id"}
      ],
      "measures": [
        {"name": "quantity", "kind": "aggregate", "aggregate_type": "sum", "column": "line_items.quantity"}
      ]
    }
  ]
}`

func TestLoadBuildsRegistryFromJSON(t *testing.T) {
	reg, err := registryjson.Load([]byte(sampleDoc))
	require.NoError(t, err)

	orders, ok := reg.Cube("Orders")
	require.True(t, ok)
	require.Len(t, orders.Joins, 1)
	require.Equal(t, "LineItems", orders.Joins[0].TargetCube)

	_, ok = orders.Measure("count")
	require.True(t, ok)

	_, ok = orders.Dimension("status")
	require.True(t, ok)
}

func TestLoadRejectsUnknownAggregateType(t *testing.T) {
	bad := `{"version":"1.0","cubes":[{"name":"Orders","table":"orders","measures":[{"name":"x","kind":"aggregate","aggregate_type":"bogus","column":"orders.x"}]}]}`

	_, err := registryjson.Load([]byte(bad))
	require.Error(t, err)
}

func TestDocumentRoundTripsThroughMarshalJSON(t *testing.T) {
	doc := registryjson.Document{
		Version: "1.0",
		Cubes: []registryjson.CubeDoc{
			{Name: "Orders", Table: "orders"},
		},
	}

	data, err := doc.MarshalJSON()
	require.NoError(t, err)

	var round registryjson.Document
	require.NoError(t, round.UnmarshalJSON(data))
	require.Equal(t, doc, round)
}
