package synthesis

import "fmt"

// Mode selects one of the four mutually exclusive synthesis paths.
type Mode int

const (
	// ModePretrainedVoice synthesizes with a stock voice shipped by the model.
	ModePretrainedVoice Mode = iota
	// ModeRapidCloning clones a voice from a short prompt clip plus its transcript.
	ModeRapidCloning
	// ModeCrossLingual clones a prompt voice while synthesizing in another language.
	ModeCrossLingual
	// ModeInstructControl steers a stock voice with natural-language instructions.
	ModeInstructControl
)

var modeNames = [...]string{
	ModePretrainedVoice: "pretrained_voice",
	ModeRapidCloning:    "rapid_cloning",
	ModeCrossLingual:    "cross_lingual",
	ModeInstructControl: "instruct_control",
}

// Modes lists every mode in presentation order.
func Modes() []Mode {
	return []Mode{ModePretrainedVoice, ModeRapidCloning, ModeCrossLingual, ModeInstructControl}
}

func (m Mode) String() string {
	if m < 0 || int(m) >= len(modeNames) {
		return fmt.Sprintf("mode(%d)", int(m))
	}
	return modeNames[m]
}

// ParseMode maps a wire name to its Mode.
func ParseMode(s string) (Mode, error) {
	for i, name := range modeNames {
		if name == s {
			return Mode(i), nil
		}
	}
	return 0, fmt.Errorf("unknown synthesis mode %q", s)
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Description returns the caller-facing usage notes for the mode.
func (m Mode) Description() string {
	switch m {
	case ModePretrainedVoice:
		return "Pick a pre-trained voice and submit the synthesis text."
	case ModeRapidCloning:
		return "Provide prompt audio of up to 30 seconds (an uploaded file wins over a recorded capture) together with its transcript, then submit the synthesis text."
	case ModeCrossLingual:
		return "Provide prompt audio of up to 30 seconds (an uploaded file wins over a recorded capture); the synthesis text should be in a different language than the prompt."
	case ModeInstructControl:
		return "Pick a pre-trained voice and describe the desired delivery in the instruct text."
	default:
		return ""
	}
}
