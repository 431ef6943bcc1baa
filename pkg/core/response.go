package core

// DataResponse holds the frames produced for one target.
type DataResponse struct {
	Frames []DataFrame `json:"frames"`
	Error  string      `json:"error,omitempty"`
}

// QueryDataResponse is the result of a non-streaming request, keyed by refId.
type QueryDataResponse struct {
	Responses map[string]DataResponse `json:"results"`
}

// NewQueryDataResponse returns an empty response ready for use.
func NewQueryDataResponse() *QueryDataResponse {
	return &QueryDataResponse{Responses: make(map[string]DataResponse)}
}

// StreamState is the state tag carried by stream updates.
type StreamState string

// StateStreaming marks an update from a live session.
const StateStreaming StreamState = "streaming"

// Update is one event on a merged streaming feed. Exactly one of Frame
// and Err is set.
type Update struct {
	Key   string      `json:"key"`
	State StreamState `json:"state"`
	Frame *DataFrame  `json:"frame,omitempty"`
	Err   error       `json:"-"`
}

// IsError reports whether the update carries an error.
func (u Update) IsError() bool {
	return u.Err != nil
}
