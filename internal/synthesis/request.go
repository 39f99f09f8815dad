package synthesis

// Request carries everything a caller supplies for one synthesis run.
// Which fields matter depends on the mode; the validator flags the rest.
type Request struct {
	Mode Mode

	// Text is the content to synthesize.
	Text string

	// Voice names a pre-trained voice. Used by the pretrained voice and
	// instruct control modes.
	Voice string

	// PromptUpload and PromptRecord are alternative sources for the prompt
	// clip used by the cloning modes. When both are set the upload wins.
	PromptUpload string
	PromptRecord string

	// PromptText is the transcript of the prompt clip.
	PromptText string

	// InstructText is the natural-language delivery instruction.
	InstructText string

	// Seed pins the generation RNG. Zero means draw a fresh seed.
	Seed int64

	// Streaming asks the engine to emit audio as it is produced rather
	// than as a single chunk.
	Streaming bool

	// Speed scales playback rate. Values <= 0 are treated as 1.0.
	Speed float64
}

// Speed bounds accepted from callers.
const (
	SpeedMin = 0.5
	SpeedMax = 2.0
)

// ValidSpeed reports whether a caller-supplied speed is usable. Zero means
// "use the default" and is accepted; anything else must sit inside
// [SpeedMin, SpeedMax].
func ValidSpeed(speed float64) bool {
	return speed == 0 || (speed >= SpeedMin && speed <= SpeedMax)
}

// PromptSource resolves which prompt clip the request supplies. An uploaded
// file always takes precedence over a recorded capture. Empty means the
// request carries no prompt audio at all.
func (r Request) PromptSource() string {
	if r.PromptUpload != "" {
		return r.PromptUpload
	}
	return r.PromptRecord
}

// Capabilities describes what the loaded model can do. The validator uses it
// to reject modes the model cannot serve.
type Capabilities struct {
	// InstructModel is true when the model is an instruct variant. Instruct
	// models serve instruct control only; non-instruct models serve the
	// other three modes.
	InstructModel bool
}

// PromptProbe carries what the dispatcher learned about the prompt clip
// before validation. Present is false when the request named no source.
type PromptProbe struct {
	Present    bool
	SampleRate int
}
