package gateway

import "fmt"

// ResponseError is a processor reply that was not a success: either a non-2xx
// HTTP status or a body whose status field is not "success".
type ResponseError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("processor responded %d (status=%q): %s", e.StatusCode, e.Status, e.Message)
}
