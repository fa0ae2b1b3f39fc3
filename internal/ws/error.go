package ws

import "encoding/json"

// wsError is the error payload the REST server returns for functional
// rejections. It arrives with HTTP status 200, distinguishable from real
// results only by its fields.
type wsError struct {
	Exception string `json:"exception"`
	ErrorCode string `json:"errorcode"`
	Message   string `json:"message"`
}

// probeWSError inspects a response body for the error payload shape. A body
// that is not a JSON object (list results, scalars, null) is never an error
// payload.
func probeWSError(body []byte) *wsError {
	trimmed := firstNonSpace(body)
	if trimmed != '{' {
		return nil
	}

	var probe wsError
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil
	}
	if probe.Exception == "" && probe.ErrorCode == "" {
		return nil
	}
	return &probe
}

func firstNonSpace(body []byte) byte {
	for _, b := range body {
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		default:
			return b
		}
	}
	return 0
}
