// Package protocol defines the bus wire format shared by the synthesis
// service and its clients.
package protocol

import "time"

// SynthRequest asks the synthesis service for one generation. PromptUpload
// and PromptRecord name audio files reachable by the service; when both are
// set the upload wins.
type SynthRequest struct {
	RequestID    string  `json:"request_id"`
	Mode         string  `json:"mode"`
	Text         string  `json:"text"`
	Voice        string  `json:"voice,omitempty"`
	PromptUpload string  `json:"prompt_upload,omitempty"`
	PromptRecord string  `json:"prompt_record,omitempty"`
	PromptText   string  `json:"prompt_text,omitempty"`
	InstructText string  `json:"instruct_text,omitempty"`
	Seed         int64   `json:"seed,omitempty"`
	Streaming    bool    `json:"streaming,omitempty"`
	Speed        float64 `json:"speed,omitempty"`
}

// SynthChunk carries one synthesized audio segment as 16-bit PCM.
type SynthChunk struct {
	RequestID  string `json:"request_id"`
	Sequence   int    `json:"sequence"`
	SampleRate int    `json:"sample_rate"`
	PCM        []byte `json:"pcm"`
	Final      bool   `json:"final"`
}

// SynthStatus reports validation results and stream completion. Warning is
// set when the request was rejected; Advisories are informational and the
// stream still runs.
type SynthStatus struct {
	RequestID  string    `json:"request_id"`
	Warning    string    `json:"warning,omitempty"`
	Advisories []string  `json:"advisories,omitempty"`
	Completed  bool      `json:"completed,omitempty"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// NodeAnnounce is the periodic capability heartbeat published by a running
// voxgate node.
type NodeAnnounce struct {
	NodeID         string    `json:"node_id"`
	Voices         int       `json:"voices"`
	InstructModel  bool      `json:"instruct_model"`
	ActiveRequests int       `json:"active_requests"`
	QueuedRequests int       `json:"queued_requests"`
	OutputRate     int       `json:"output_rate"`
	Timestamp      time.Time `json:"timestamp"`
}

const (
	SubjectSynthRequest      = "voxgate.synth.request"
	SubjectSynthAudioPrefix  = "voxgate.synth.audio"
	SubjectSynthStatusPrefix = "voxgate.synth.status"
	SubjectNodeAnnounce      = "voxgate.node.announce"
)

// AudioSubject returns the per-request chunk subject.
func AudioSubject(requestID string) string {
	return SubjectSynthAudioPrefix + "." + requestID
}

// StatusSubject returns the per-request status subject.
func StatusSubject(requestID string) string {
	return SubjectSynthStatusPrefix + "." + requestID
}
