package gazetteer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/quake-intensity-service/internal/domain"
)

func ptr(v float64) *float64 { return &v }

func TestBuiltin_HasAllDistricts(t *testing.T) {
	g := Builtin()

	assert.Equal(t, 29, g.Len())
	assert.Equal(t, []string{"臺北市", "新北市", "桃園市", "臺中市", "臺南市", "高雄市", "宜蘭縣", "花蓮縣", "臺東縣"}, g.Counties())
}

func TestBuiltinRecords_ReturnsFreshCopy(t *testing.T) {
	a := BuiltinRecords()
	*a[0].Lat = 0

	b := BuiltinRecords()
	assert.Equal(t, 25.0331574, *b[0].Lat)
}

func TestNearestRegion_ExactCoordinate(t *testing.T) {
	g := Builtin()

	key, distance, ok := g.NearestRegion(25.0331574, 121.5668777)

	require.True(t, ok)
	assert.Equal(t, domain.RegionKey{County: "臺北市", District: "信義區"}, key)
	assert.Zero(t, distance)
}

func TestNearestRegion_EveryBuiltinDistrictResolvesToItself(t *testing.T) {
	g := Builtin()

	for _, r := range g.Regions() {
		key, distance, ok := g.NearestRegion(r.Lat, r.Lon)
		require.True(t, ok)
		assert.Equal(t, r.RegionKey, key)
		assert.InDelta(t, 0, distance, 1e-9)
	}
}

func TestNearestRegion_OffshoreHualien(t *testing.T) {
	key, distance, ok := Builtin().NearestRegion(23.9076, 121.8731)

	require.True(t, ok)
	assert.Equal(t, domain.RegionKey{County: "花蓮縣", District: "花蓮市"}, key)
	assert.InDelta(t, 28.3, distance, 0.1)
}

func TestNearestRegion_FirstMinimumWins(t *testing.T) {
	g, _ := New([]domain.RegionRecord{
		{County: "A", District: "first", Lat: ptr(24), Lon: ptr(121)},
		{County: "B", District: "second", Lat: ptr(24), Lon: ptr(121)},
	})

	key, _, ok := g.NearestRegion(24, 121)

	require.True(t, ok)
	assert.Equal(t, "first", key.District)
}

func TestNearestRegion_EmptyGazetteer(t *testing.T) {
	g, _ := New(nil)

	key, _, ok := g.NearestRegion(25, 121)

	assert.False(t, ok)
	assert.Equal(t, domain.UnknownRegion, key)
}

func TestCoordinatesOf(t *testing.T) {
	g := Builtin()

	c, ok := g.CoordinatesOf("臺北市", "信義區")
	require.True(t, ok)
	assert.Equal(t, domain.Coordinate{Lat: 25.0331574, Lon: 121.5668777}, c)

	c, ok = g.CoordinatesOf("台東縣", "成功鎮")
	require.True(t, ok, "台 variant should resolve")
	assert.Equal(t, 23.1050697, c.Lat)

	_, ok = g.CoordinatesOf("unknown county", "unknown district")
	assert.False(t, ok)
}

func TestSiteFactorOf(t *testing.T) {
	g, _ := New([]domain.RegionRecord{
		{County: "宜蘭縣", District: "羅東鎮", Lat: ptr(24.67), Lon: ptr(121.76), Site: ptr(1.4)},
		{County: "宜蘭縣", District: "宜蘭市", Lat: ptr(24.75), Lon: ptr(121.75)},
	})

	assert.Equal(t, 1.4, g.SiteFactorOf("宜蘭縣", "羅東鎮"))
	assert.Equal(t, 1.0, g.SiteFactorOf("宜蘭縣", "宜蘭市"))
	assert.Equal(t, 1.0, g.SiteFactorOf("nowhere", "nothing"))
}

func TestNew_SkipsMalformedAndDuplicates(t *testing.T) {
	g, diag := New([]domain.RegionRecord{
		{County: "A", District: "ok", Lat: ptr(24), Lon: ptr(121)},
		{County: "A", District: "nolat", Lon: ptr(121)},
		{County: "A", District: "ok", Lat: ptr(25), Lon: ptr(122)},
		{County: "B", District: "far", Lat: ptr(200), Lon: ptr(121)},
	})

	assert.Equal(t, 1, g.Len())
	assert.Equal(t, []SkippedEntry{
		{County: "A", District: "nolat", Reason: "missing coordinates"},
		{County: "A", District: "ok", Reason: "duplicate district"},
		{County: "B", District: "far", Reason: "coordinates out of range"},
	}, diag.Skipped)

	c, ok := g.CoordinatesOf("A", "ok")
	require.True(t, ok)
	assert.Equal(t, 24.0, c.Lat, "first occurrence wins")
}

func TestNew_VersionsAreUnique(t *testing.T) {
	a, _ := New(BuiltinRecords())
	b, _ := New(BuiltinRecords())
	assert.NotEqual(t, a.Version(), b.Version())
}

func TestRegions_ReturnsCopy(t *testing.T) {
	g := Builtin()
	regions := g.Regions()
	regions[0].Lat = 0

	c, _ := g.CoordinatesOf("臺北市", "信義區")
	assert.Equal(t, 25.0331574, c.Lat)
}
