package gazetteer

import "github.com/couchcryptid/quake-intensity-service/internal/domain"

type builtinCounty struct {
	name      string
	districts []builtinDistrict
}

type builtinDistrict struct {
	name     string
	lat, lon float64
}

// builtinTable lists reference points for the main districts of nine
// counties. No district carries an explicit site factor.
var builtinTable = []builtinCounty{
	{name: "臺北市", districts: []builtinDistrict{
		{"信義區", 25.0331574, 121.5668777},
		{"大安區", 25.02642, 121.534511},
		{"中正區", 25.0443212, 121.5247613},
		{"萬華區", 25.034839, 121.4997957},
		{"內湖區", 25.06929, 121.588949},
		{"士林區", 25.0927548, 121.519565},
	}},
	{name: "新北市", districts: []builtinDistrict{
		{"板橋區", 25.0096156, 121.4592358},
		{"新莊區", 25.035976, 121.450478},
		{"中和區", 24.9985208, 121.5007413},
		{"三峽區", 24.9341863, 121.369083},
		{"淡水區", 25.1696463, 121.4409722},
	}},
	{name: "桃園市", districts: []builtinDistrict{
		{"桃園區", 24.993919, 121.3016657},
		{"中壢區", 24.9656124, 121.2249927},
		{"龜山區", 24.9925139, 121.337824},
	}},
	{name: "臺中市", districts: []builtinDistrict{
		{"西屯區", 24.1658213, 120.6336717},
		{"北屯區", 24.1826848, 120.686403},
		{"南屯區", 24.1345298, 120.6442903},
	}},
	{name: "臺南市", districts: []builtinDistrict{
		{"東區", 22.9802421, 120.224004},
		{"安南區", 23.0472321, 120.184714},
		{"永康區", 23.0260699, 120.2570647},
	}},
	{name: "高雄市", districts: []builtinDistrict{
		{"三民區", 22.647684, 120.299851},
		{"左營區", 22.6899834, 120.2950135},
		{"鳳山區", 22.627075, 120.362525},
	}},
	{name: "宜蘭縣", districts: []builtinDistrict{
		{"宜蘭市", 24.7520373, 121.7531493},
		{"羅東鎮", 24.6769245, 121.7669529},
	}},
	{name: "花蓮縣", districts: []builtinDistrict{
		{"花蓮市", 23.9820651, 121.6067705},
		{"玉里鎮", 23.335527, 121.315197},
	}},
	{name: "臺東縣", districts: []builtinDistrict{
		{"臺東市", 22.7548208, 121.1465131},
		{"成功鎮", 23.1050697, 121.3808747},
	}},
}

// BuiltinRecords returns a fresh copy of the compiled-in dataset.
func BuiltinRecords() []domain.RegionRecord {
	var records []domain.RegionRecord
	for _, c := range builtinTable {
		for _, d := range c.districts {
			lat, lon := d.lat, d.lon
			records = append(records, domain.RegionRecord{
				County:   c.name,
				District: d.name,
				Lat:      &lat,
				Lon:      &lon,
			})
		}
	}
	return records
}

// Builtin returns a gazetteer over the compiled-in dataset.
func Builtin() *Gazetteer {
	g, _ := New(BuiltinRecords())
	return g
}
