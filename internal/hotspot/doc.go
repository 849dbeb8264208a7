// Package hotspot computes the Getis-Ord Gi* statistic for road segments.
//
// Weights are binary and self-inclusive: segment j is a neighbour of i when
// the distance between their centroids is within a fixed band, and every
// segment is its own neighbour. The same Graph is reused for every analysed
// variable.
package hotspot
