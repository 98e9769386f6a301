package query

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const geoResults = `<?xml version="1.0"?>
<sparql xmlns="http://www.w3.org/2005/sparql-results#">
  <head><variable name="cw"/><variable name="lat"/><variable name="long"/></head>
  <results>
    <result>
      <binding name="cw"><uri>http://www.bbc.co.uk/things/1#id</uri></binding>
      <binding name="lat"><literal datatype="http://www.w3.org/2001/XMLSchema#float">51.5072</literal></binding>
      <binding name="long"><literal>-0.1275</literal></binding>
    </result>
    <result>
      <binding name="cw"><uri>http://www.bbc.co.uk/things/2#id</uri></binding>
      <binding name="dateModified"><literal>2011-03-04T10:00:00Z</literal></binding>
    </result>
  </results>
</sparql>`

func TestXMLResultsExtractor(t *testing.T) {
	entities, err := XMLResultsExtractor{}.Extract(geoResults)
	require.NoError(t, err)
	require.Len(t, entities, 2)

	assert.Equal(t, "http://www.bbc.co.uk/things/1#id", entities[0].URI)
	assert.Equal(t, "51.5072", entities[0].Properties["lat"])
	assert.Equal(t, "-0.1275", entities[0].Properties["long"])
	assert.Equal(t, "2011-03-04T10:00:00Z", entities[1].Properties["dateModified"])
}

func TestXMLResultsExtractor_EmptyAndMalformed(t *testing.T) {
	entities, err := XMLResultsExtractor{}.Extract("")
	assert.NoError(t, err)
	assert.Empty(t, entities)

	entities, err = XMLResultsExtractor{}.Extract(`<sparql><head/><results></results></sparql>`)
	assert.NoError(t, err)
	assert.Empty(t, entities)

	_, err = XMLResultsExtractor{}.Extract(`<sparql><results><result>`)
	assert.Error(t, err)
}

func TestDeriveGeo(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	e := Entity{URI: "urn:a", Properties: map[string]string{"geo:lat": "51.5", "long": "-0.12"}}

	for i := 0; i < 100; i++ {
		params, err := DeriveGeo(e, rng)
		require.NoError(t, err)
		assert.Equal(t, "51.5", params["lat"])
		assert.Equal(t, "-0.12", params["long"])
		assert.GreaterOrEqual(t, params["radius"], "0.0100")
		assert.Less(t, params["radius"], "0.0800")
	}

	_, err := DeriveGeo(Entity{Properties: map[string]string{"lat": "x", "long": "1"}}, rng)
	assert.Error(t, err)
	_, err = DeriveGeo(Entity{Properties: map[string]string{"lat": "1"}}, rng)
	assert.Error(t, err)
}

func TestDeriveDate(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	e := Entity{Properties: map[string]string{"cwork:dateModified": "2011-03-04T10:00:00Z"}}

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		params, err := DeriveDate(e, rng)
		require.NoError(t, err)
		assert.Equal(t, "2011-03-04T10:00:00Z", params["dateModified"])
		seen[params["range"]] = true
	}
	assert.Equal(t, map[string]bool{"1": true, "2": true}, seen)

	_, err := DeriveDate(Entity{}, rng)
	assert.Error(t, err)
}

func TestDeriveDate_NormalizesBackendValue(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	cases := []struct {
		raw  string
		want string
	}{
		{"2011-03-04T10:00:00+01:00", "2011-03-04T10:00:00+01:00"},
		{"2011-03-04T10:00:00.250Z", "2011-03-04T10:00:00.25Z"},
		{"2011-03-04T10:00:00", "2011-03-04T10:00:00Z"},
	}
	for _, tc := range cases {
		params, err := DeriveDate(Entity{Properties: map[string]string{"dateModified": tc.raw}}, rng)
		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.want, params["dateModified"])
	}

	for _, bad := range []string{`2011-03-04T10:00:00Z" } DROP ALL #`, "yesterday", "2011-13-40T10:00:00Z"} {
		_, err := DeriveDate(Entity{URI: "urn:a", Properties: map[string]string{"dateModified": bad}}, rng)
		assert.Error(t, err, bad)
	}
}

func TestResolveDrillDowns(t *testing.T) {
	specs, err := ResolveDrillDowns(DefaultDrillDowns())
	require.NoError(t, err)
	assert.Equal(t, StrategyGeo, specs["query24.txt"].Strategy)
	assert.Equal(t, StrategyDate, specs["query25.txt"].Strategy)
	assert.NotNil(t, specs["query25.txt"].Derive)

	_, err = ResolveDrillDowns(map[string]string{"q.txt": "spiral"})
	assert.Error(t, err)
}
