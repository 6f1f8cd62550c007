// Package export renders normalized query results into interchange formats.
package export

import (
	"fmt"

	"github.com/jobrunner/atlas/internal/domain"
)

// Encode renders the result in the given target format and returns the
// encoded document plus its media type.
func Encode(result *domain.FeatureResult, target domain.ExportTarget) ([]byte, string, error) {
	switch target {
	case domain.ExportGeoJSON, "":
		b, err := GeoJSON(result)
		return b, "application/geo+json", err
	case domain.ExportCSV:
		b, err := CSV(result)
		return b, "text/csv", err
	case domain.ExportKML:
		b, err := KML(result)
		return b, "application/vnd.google-earth.kml+xml", err
	case domain.ExportShapefile:
		b, err := ShapefileStructure(result)
		return b, "application/json", err
	}
	return nil, "", fmt.Errorf("%w: export target %q", domain.ErrUnsupported, target)
}
