package notion

import (
	"errors"
	"fmt"
)

// Error codes returned by the Notion API that callers care about.
const (
	CodeUnauthorized       = "unauthorized"
	CodeRestrictedResource = "restricted_resource"
	CodeRateLimited        = "rate_limited"
	CodeObjectNotFound     = "object_not_found"
	CodeValidationError    = "validation_error"
)

// APIError is the single normalized form for every remote failure. Callers
// distinguish unauthorized, forbidden and generic cases by inspecting Code.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("notion API error (%s, HTTP %d): %s", e.Code, e.Status, e.Message)
}

// ErrRetriesExhausted wraps the final rate-limit error after the retry
// budget is spent.
var ErrRetriesExhausted = errors.New("notion API rate limit retries exhausted")

func asAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return nil
}

// IsUnauthorized reports an invalid or expired integration token.
func IsUnauthorized(err error) bool {
	e := asAPIError(err)
	return e != nil && e.Code == CodeUnauthorized
}

// IsForbidden reports that the integration lacks access to the resource.
func IsForbidden(err error) bool {
	e := asAPIError(err)
	return e != nil && e.Code == CodeRestrictedResource
}

// IsRateLimited reports a 429 response.
func IsRateLimited(err error) bool {
	e := asAPIError(err)
	return e != nil && e.Code == CodeRateLimited
}

// IsNotFound reports a missing page or database.
func IsNotFound(err error) bool {
	e := asAPIError(err)
	return e != nil && e.Code == CodeObjectNotFound
}
