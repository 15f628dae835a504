package equity

import "errors"

var (
	// ErrInvalidAPIURL indicates that api_url is not an absolute http(s) URL.
	ErrInvalidAPIURL = errors.New("api_url must be an absolute http(s) URL")
)
