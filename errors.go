package groundtruth

import "errors"

// Error kinds returned by Service operations. Callers match them with
// errors.Is; the wrapped message carries the upstream detail.
var (
	// ErrInvalidInput means a required field was empty or missing.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound means the geocoder returned no match for the query.
	ErrNotFound = errors.New("location not found")

	// ErrInvalidResponse means an upstream returned data we refuse to use,
	// e.g. a geocoding feature whose coordinate pair is not two finite numbers.
	ErrInvalidResponse = errors.New("invalid upstream response")

	// ErrGeocodingFailed wraps transport and provider failures from the geocoder.
	ErrGeocodingFailed = errors.New("geocoding failed")

	// ErrExtractionFailed wraps model-call failures during location extraction.
	ErrExtractionFailed = errors.New("location extraction failed")

	// ErrImageFetchFailed means the image bytes could not be downloaded. It is
	// distinct from a verification failure so callers can tell a bad image URL
	// from a model problem.
	ErrImageFetchFailed = errors.New("image fetch failed")
)
