// Package geo provides geospatial helpers for proximity matching.
package geo
