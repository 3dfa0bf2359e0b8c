// Package geo wraps the public geodata REST services (location lookup,
// elevation, WMS/ESRI feature queries) and the Swiss coordinate transforms.
package geo

// WGS84ToLV95 converts WGS84 degrees into Swiss LV95 meters using the
// swisstopo approximation formulas. Accuracy is better than 1 m in position
// and 0.5 m in height, which is sufficient for catalog and map use.
func WGS84ToLV95(lat, lon float64) (easting, northing float64) {
	latAux := (lat*3600 - 169028.66) / 10000
	lonAux := (lon*3600 - 26782.5) / 10000

	easting = 2600072.37 +
		211455.93*lonAux -
		10938.51*lonAux*latAux -
		0.36*lonAux*latAux*latAux -
		44.54*lonAux*lonAux*lonAux
	northing = 1200147.07 +
		308807.95*latAux +
		3745.25*lonAux*lonAux +
		76.63*latAux*latAux -
		194.56*lonAux*lonAux*latAux +
		119.79*latAux*latAux*latAux
	return easting, northing
}

// LV95ToWGS84 converts Swiss LV95 meters into WGS84 degrees (lat, lon).
func LV95ToWGS84(easting, northing float64) (lat, lon float64) {
	yAux := (easting - 2600000) / 1000000
	xAux := (northing - 1200000) / 1000000

	lonSec := 2.6779094 +
		4.728982*yAux +
		0.791484*yAux*xAux +
		0.1306*yAux*xAux*xAux -
		0.0436*yAux*yAux*yAux
	latSec := 16.9023892 +
		3.238272*xAux -
		0.270978*yAux*yAux -
		0.002528*xAux*xAux -
		0.0447*yAux*yAux*xAux -
		0.0140*xAux*xAux*xAux

	return latSec * 100 / 36, lonSec * 100 / 36
}
