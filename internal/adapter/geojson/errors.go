package geojson

import "errors"

var (
	errUnsupportedGeometry = errors.New("unsupported geometry")
	errBadTimestamp        = errors.New("invalid timestamp")
)
