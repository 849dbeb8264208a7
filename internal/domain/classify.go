package domain

import "strings"

// ClassifyFatalities sets the Fatalities flag on every observation: 1 when the
// category equals fatalValue, 0 otherwise. It mutates the layer it is given,
// so callers pass their working copy.
func ClassifyFatalities(layer *PointLayer, fatalValue string) (fatal int) {
	target := strings.TrimSpace(fatalValue)
	for i := range layer.Observations {
		o := &layer.Observations[i]
		if o.Values == nil {
			o.Values = make(map[string]float64, 1)
		}
		flag := 0.0
		if strings.TrimSpace(o.Category) == target {
			flag = 1
			fatal++
		}
		o.Values[FatalitiesField] = flag
	}
	if !layer.HasField(FatalitiesField) {
		layer.Fields = append(layer.Fields, FatalitiesField)
	}
	return fatal
}
