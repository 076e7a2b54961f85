package weather

import "fmt"

// Group is the physical quantity an observation measures.
type Group int

const (
	GroupNone Group = iota
	GroupTemperature
	GroupPressure
	GroupSpeed
	GroupRain
	GroupRainRate
)

// obsGroups maps observation names to their group. Observations not listed
// (humidity, direction, radiation, UV, moisture, leaf wetness) are unitless
// for conversion purposes and pass through unchanged.
var obsGroups = map[string]Group{
	"outTemp":    GroupTemperature,
	"inTemp":     GroupTemperature,
	"dewpoint":   GroupTemperature,
	"windchill":  GroupTemperature,
	"heatindex":  GroupTemperature,
	"appTemp":    GroupTemperature,
	"outTempMax": GroupTemperature,
	"outTempMin": GroupTemperature,
	"extraTemp1": GroupTemperature,
	"extraTemp2": GroupTemperature,
	"extraTemp3": GroupTemperature,
	"soilTemp1":  GroupTemperature,
	"soilTemp2":  GroupTemperature,
	"soilTemp3":  GroupTemperature,
	"soilTemp4":  GroupTemperature,
	"leafTemp1":  GroupTemperature,
	"leafTemp2":  GroupTemperature,

	"barometer": GroupPressure,
	"pressure":  GroupPressure,
	"altimeter": GroupPressure,

	"windSpeed":   GroupSpeed,
	"windGust":    GroupSpeed,
	"windSpeed10": GroupSpeed,

	"rain":      GroupRain,
	"hourRain":  GroupRain,
	"dayRain":   GroupRain,
	"monthRain": GroupRain,
	"yearRain":  GroupRain,
	"rain24":    GroupRain,
	"stormRain": GroupRain,

	"rainRate": GroupRainRate,
}

// GroupOf returns the group of an observation, GroupNone when unknown.
func GroupOf(name string) Group {
	return obsGroups[name]
}

// ConvertToUS converts a single value of the given group from the unit
// system `from` into US customary units (°F, inch, mph, inHg, inch/hour).
func ConvertToUS(v Value, g Group, from UnitSystem) (Value, error) {
	if !v.Valid || from == US || g == GroupNone {
		return v, nil
	}

	x := v.Float
	switch from {
	case Metric:
		switch g {
		case GroupTemperature:
			x = x*1.8 + 32.0
		case GroupPressure:
			x = x * 0.0295299830714
		case GroupSpeed:
			x = x / 1.609344
		case GroupRain, GroupRainRate:
			x = x / 2.54
		}
	case MetricWX:
		switch g {
		case GroupTemperature:
			x = x*1.8 + 32.0
		case GroupPressure:
			x = x * 0.0295299830714
		case GroupSpeed:
			x = x * 2.23693629
		case GroupRain, GroupRainRate:
			x = x / 25.4
		}
	default:
		return v, fmt.Errorf("unknown unit system %d", int(from))
	}
	return Float(x), nil
}

// ToUS returns a copy of rec with every convertible field expressed in US
// units. A record already in US units is returned as a plain copy.
func ToUS(rec Record) (Record, error) {
	out := rec.Clone()
	if rec.Units == US {
		return out, nil
	}
	if !rec.Units.Valid() {
		return out, fmt.Errorf("unknown unit system %d", int(rec.Units))
	}

	for name, v := range out.Fields {
		cv, err := ConvertToUS(v, GroupOf(name), rec.Units)
		if err != nil {
			return out, err
		}
		out.Fields[name] = cv
	}
	out.Units = US
	return out, nil
}
