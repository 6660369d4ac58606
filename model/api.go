package model

import (
	"encoding/json"
	"fmt"
)

// ApiErrorResponse holds whatever body the vendor sent with a non-2xx status.
type ApiErrorResponse map[string]any

func (e ApiErrorResponse) String() string {
	bytes, err := json.Marshal(e)
	if err != nil {
		return "cannot define error response"
	}

	return string(bytes)
}

// Message returns the vendor supplied reason, if any.
func (e ApiErrorResponse) Message() string {
	for _, key := range []string{"exception", "message", "error"} {
		if v, ok := e[key]; ok && v != nil {
			return fmt.Sprint(v)
		}
	}

	return ""
}
