package weatherbug

// Field pairs an archive observation with the query parameter it is uploaded
// as and the printf verb that fixes its precision.
type Field struct {
	Source string
	Target string
	Format string
}

// FieldMapping lists every observation eligible for upload, ordered by target
// parameter. Parameter casing is part of the wire contract. Values are taken
// in US units; radiation is sent as the station records it.
var FieldMapping = []Field{
	{Source: "UV", Target: "UV", Format: "%.0f"},
	{Source: "yearRain", Target: "Yearlyrainin", Format: "%.2f"},
	{Source: "barometer", Target: "baromin", Format: "%.3f"},
	{Source: "dayRain", Target: "dailyRainin", Format: "%.2f"},
	{Source: "dewpoint", Target: "dewptf", Format: "%.1f"},
	{Source: "outHumidity", Target: "humidity", Format: "%.0f"},
	{Source: "extraHumid1", Target: "humidity2", Format: "%.0f"},
	{Source: "extraHumid2", Target: "humidity3", Format: "%.0f"},
	{Source: "leafWet1", Target: "leafwetness", Format: "%.1f"},
	{Source: "monthRain", Target: "monthlyrainin", Format: "%.2f"},
	{Source: "hourRain", Target: "rainin", Format: "%.2f"},
	{Source: "soilMoist1", Target: "soilmoisture", Format: "%.1f"},
	{Source: "soilMoist2", Target: "soilmoisture2", Format: "%.1f"},
	{Source: "soilMoist3", Target: "soilmoisture3", Format: "%.1f"},
	{Source: "soilMoist4", Target: "soilmoisture4", Format: "%.1f"},
	{Source: "soilTemp1", Target: "soiltempf", Format: "%.1f"},
	{Source: "soilTemp2", Target: "soiltempf2", Format: "%.1f"},
	{Source: "soilTemp3", Target: "soiltempf3", Format: "%.1f"},
	{Source: "soilTemp4", Target: "soiltempf4", Format: "%.1f"},
	{Source: "radiation", Target: "solarradiation", Format: "%.1f"},
	{Source: "outTemp", Target: "tempf", Format: "%.1f"},
	{Source: "extraTemp1", Target: "tempf2", Format: "%.1f"},
	{Source: "extraTemp2", Target: "tempf3", Format: "%.1f"},
	{Source: "extraTemp3", Target: "tempf4", Format: "%.1f"},
	{Source: "outTempMax", Target: "tempfhi", Format: "%.1f"},
	{Source: "outTempMin", Target: "tempflo", Format: "%.1f"},
	{Source: "windDir", Target: "winddir", Format: "%.0f"},
	{Source: "windGust", Target: "windgustmph", Format: "%.1f"},
	{Source: "windSpeed", Target: "windspeedmph", Format: "%.1f"},
}
