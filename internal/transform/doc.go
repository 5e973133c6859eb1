// Package transform converts fetched source images into the published form:
// width-bounded, aspect-preserving JPEGs at reduced quality, written to the
// configured output directory under deterministic names.
package transform
