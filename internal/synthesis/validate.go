package synthesis

import "fmt"

// Caller-facing rule messages. Serving layers surface these verbatim, so
// the wording is part of the contract.
const (
	msgInstructUnsupported     = "You are using instruct control mode, but the loaded model does not support instruct synthesis."
	msgInstructTextMissing     = "You are using instruct control mode, please enter instruct text."
	msgPromptFieldsIgnored     = "Prompt audio and prompt text will be ignored."
	msgCrossLingualUnsupported = "You are using cross-lingual mode, but the loaded model only supports instruct synthesis."
	msgInstructTextIgnored     = "Instruct text will be ignored."
	msgLanguageReminder        = "Make sure the synthesis text and the prompt text are in different languages."
	msgPromptAudioMissing      = "Prompt audio is empty, did you forget to provide prompt audio?"
	msgPromptRateLowFmt        = "Prompt audio sample rate %d is lower than %d."
	msgPromptTextMissing       = "Prompt text is empty, did you forget to enter prompt text?"
	msgVoiceInstructIgnored    = "Pre-trained voice and instruct text will be ignored."
	msgAllPromptIgnored        = "Prompt text, prompt audio and instruct text will be ignored."
)

// Outcome is the verdict on one request: either a single fatal message that
// aborts synthesis, or zero or more advisories attached to a proceeding
// request. Never both.
type Outcome struct {
	fatal      string
	advisories []string
}

func fatalOutcome(msg string) Outcome { return Outcome{fatal: msg} }

// Fatal reports the abort message when the request must not proceed.
func (o Outcome) Fatal() (string, bool) { return o.fatal, o.fatal != "" }

// Advisories lists the informational messages for a proceeding request.
func (o Outcome) Advisories() []string { return o.advisories }

// Validate runs the precondition rules for the request's mode. Fatal rules
// are checked in a fixed order per mode and the first hit wins; advisories
// are only collected when no fatal rule fired.
func Validate(req Request, caps Capabilities, prompt PromptProbe, minPromptRate int) Outcome {
	switch req.Mode {
	case ModeInstructControl:
		if !caps.InstructModel {
			return fatalOutcome(msgInstructUnsupported)
		}
		if req.InstructText == "" {
			return fatalOutcome(msgInstructTextMissing)
		}
		var out Outcome
		if prompt.Present || req.PromptText != "" {
			out.advisories = append(out.advisories, msgPromptFieldsIgnored)
		}
		return out

	case ModeCrossLingual:
		if caps.InstructModel {
			return fatalOutcome(msgCrossLingualUnsupported)
		}
		if !prompt.Present {
			return fatalOutcome(msgPromptAudioMissing)
		}
		if prompt.SampleRate < minPromptRate {
			return fatalOutcome(fmt.Sprintf(msgPromptRateLowFmt, prompt.SampleRate, minPromptRate))
		}
		var out Outcome
		if req.InstructText != "" {
			out.advisories = append(out.advisories, msgInstructTextIgnored)
		}
		out.advisories = append(out.advisories, msgLanguageReminder)
		return out

	case ModeRapidCloning:
		if !prompt.Present {
			return fatalOutcome(msgPromptAudioMissing)
		}
		if prompt.SampleRate < minPromptRate {
			return fatalOutcome(fmt.Sprintf(msgPromptRateLowFmt, prompt.SampleRate, minPromptRate))
		}
		if req.PromptText == "" {
			return fatalOutcome(msgPromptTextMissing)
		}
		var out Outcome
		if req.InstructText != "" {
			out.advisories = append(out.advisories, msgVoiceInstructIgnored)
		}
		return out

	case ModePretrainedVoice:
		var out Outcome
		if req.InstructText != "" || prompt.Present || req.PromptText != "" {
			out.advisories = append(out.advisories, msgAllPromptIgnored)
		}
		return out
	}
	return Outcome{}
}
