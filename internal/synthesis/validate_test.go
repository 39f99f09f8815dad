package synthesis

import (
	"fmt"
	"testing"
)

const testPromptRate = 16000

func okPrompt() PromptProbe {
	return PromptProbe{Present: true, SampleRate: testPromptRate}
}

func TestValidateInstructControl(t *testing.T) {
	req := Request{Mode: ModeInstructControl, Text: "hello", Voice: "anna", InstructText: "speak softly"}

	out := Validate(req, Capabilities{InstructModel: false}, PromptProbe{}, testPromptRate)
	if msg, ok := out.Fatal(); !ok || msg != msgInstructUnsupported {
		t.Fatalf("expected instruct unsupported fatal, got %q ok=%v", msg, ok)
	}

	// Capability check outranks the empty instruct text check.
	req.InstructText = ""
	out = Validate(req, Capabilities{InstructModel: false}, PromptProbe{}, testPromptRate)
	if msg, _ := out.Fatal(); msg != msgInstructUnsupported {
		t.Fatalf("expected capability fatal first, got %q", msg)
	}

	out = Validate(req, Capabilities{InstructModel: true}, PromptProbe{}, testPromptRate)
	if msg, ok := out.Fatal(); !ok || msg != msgInstructTextMissing {
		t.Fatalf("expected missing instruct text fatal, got %q ok=%v", msg, ok)
	}

	req.InstructText = "speak softly"
	req.PromptText = "left over"
	out = Validate(req, Capabilities{InstructModel: true}, PromptProbe{}, testPromptRate)
	if _, ok := out.Fatal(); ok {
		t.Fatal("did not expect fatal")
	}
	if len(out.Advisories()) != 1 || out.Advisories()[0] != msgPromptFieldsIgnored {
		t.Fatalf("expected prompt fields advisory, got %v", out.Advisories())
	}

	req.PromptText = ""
	out = Validate(req, Capabilities{InstructModel: true}, okPrompt(), testPromptRate)
	if len(out.Advisories()) != 1 || out.Advisories()[0] != msgPromptFieldsIgnored {
		t.Fatalf("expected advisory for present prompt audio, got %v", out.Advisories())
	}

	out = Validate(req, Capabilities{InstructModel: true}, PromptProbe{}, testPromptRate)
	if len(out.Advisories()) != 0 {
		t.Fatalf("expected clean pass, got %v", out.Advisories())
	}
}

func TestValidateCrossLingual(t *testing.T) {
	req := Request{Mode: ModeCrossLingual, Text: "bonjour"}

	out := Validate(req, Capabilities{InstructModel: true}, okPrompt(), testPromptRate)
	if msg, ok := out.Fatal(); !ok || msg != msgCrossLingualUnsupported {
		t.Fatalf("expected instruct-only fatal, got %q ok=%v", msg, ok)
	}

	out = Validate(req, Capabilities{}, PromptProbe{}, testPromptRate)
	if msg, ok := out.Fatal(); !ok || msg != msgPromptAudioMissing {
		t.Fatalf("expected missing prompt fatal, got %q ok=%v", msg, ok)
	}

	out = Validate(req, Capabilities{}, PromptProbe{Present: true, SampleRate: 8000}, testPromptRate)
	want := fmt.Sprintf(msgPromptRateLowFmt, 8000, testPromptRate)
	if msg, ok := out.Fatal(); !ok || msg != want {
		t.Fatalf("expected rate fatal %q, got %q ok=%v", want, msg, ok)
	}

	// Valid requests always carry the language reminder.
	out = Validate(req, Capabilities{}, okPrompt(), testPromptRate)
	if _, ok := out.Fatal(); ok {
		t.Fatal("did not expect fatal")
	}
	if len(out.Advisories()) != 1 || out.Advisories()[0] != msgLanguageReminder {
		t.Fatalf("expected language reminder only, got %v", out.Advisories())
	}

	req.InstructText = "whisper"
	out = Validate(req, Capabilities{}, okPrompt(), testPromptRate)
	got := out.Advisories()
	if len(got) != 2 || got[0] != msgInstructTextIgnored || got[1] != msgLanguageReminder {
		t.Fatalf("expected instruct-ignored then reminder, got %v", got)
	}
}

func TestValidateRapidCloning(t *testing.T) {
	req := Request{Mode: ModeRapidCloning, Text: "hello", PromptText: "hi there"}

	out := Validate(req, Capabilities{}, PromptProbe{}, testPromptRate)
	if msg, ok := out.Fatal(); !ok || msg != msgPromptAudioMissing {
		t.Fatalf("expected missing prompt fatal, got %q ok=%v", msg, ok)
	}

	// Prompt absence is checked before the transcript.
	req.PromptText = ""
	out = Validate(req, Capabilities{}, PromptProbe{}, testPromptRate)
	if msg, _ := out.Fatal(); msg != msgPromptAudioMissing {
		t.Fatalf("expected prompt audio fatal first, got %q", msg)
	}

	out = Validate(req, Capabilities{}, PromptProbe{Present: true, SampleRate: 11025}, testPromptRate)
	want := fmt.Sprintf(msgPromptRateLowFmt, 11025, testPromptRate)
	if msg, _ := out.Fatal(); msg != want {
		t.Fatalf("expected rate fatal %q, got %q", want, msg)
	}

	out = Validate(req, Capabilities{}, okPrompt(), testPromptRate)
	if msg, ok := out.Fatal(); !ok || msg != msgPromptTextMissing {
		t.Fatalf("expected missing prompt text fatal, got %q ok=%v", msg, ok)
	}

	req.PromptText = "hi there"
	out = Validate(req, Capabilities{}, okPrompt(), testPromptRate)
	if _, ok := out.Fatal(); ok {
		t.Fatal("did not expect fatal")
	}
	if len(out.Advisories()) != 0 {
		t.Fatalf("expected no advisories, got %v", out.Advisories())
	}

	req.InstructText = "cheerful"
	out = Validate(req, Capabilities{}, okPrompt(), testPromptRate)
	if len(out.Advisories()) != 1 || out.Advisories()[0] != msgVoiceInstructIgnored {
		t.Fatalf("expected voice/instruct advisory, got %v", out.Advisories())
	}
}

func TestValidatePretrainedVoice(t *testing.T) {
	req := Request{Mode: ModePretrainedVoice, Text: "hello", Voice: "anna"}

	out := Validate(req, Capabilities{}, PromptProbe{}, testPromptRate)
	if _, ok := out.Fatal(); ok {
		t.Fatal("did not expect fatal")
	}
	if len(out.Advisories()) != 0 {
		t.Fatalf("expected clean pass, got %v", out.Advisories())
	}

	// Extra fields are never fatal here, only advised away.
	req.PromptText = "stray"
	req.InstructText = "stray"
	out = Validate(req, Capabilities{}, okPrompt(), testPromptRate)
	if _, ok := out.Fatal(); ok {
		t.Fatal("did not expect fatal for extra fields")
	}
	if len(out.Advisories()) != 1 || out.Advisories()[0] != msgAllPromptIgnored {
		t.Fatalf("expected ignore-all advisory, got %v", out.Advisories())
	}

	req.PromptText = ""
	req.InstructText = ""
	out = Validate(req, Capabilities{}, okPrompt(), testPromptRate)
	if len(out.Advisories()) != 1 {
		t.Fatalf("expected advisory for prompt audio alone, got %v", out.Advisories())
	}
}

func TestValidateFatalCarriesNoAdvisories(t *testing.T) {
	// A fatal cross-lingual request would otherwise earn the reminder.
	req := Request{Mode: ModeCrossLingual, Text: "hola", InstructText: "stray"}
	out := Validate(req, Capabilities{}, PromptProbe{}, testPromptRate)
	if _, ok := out.Fatal(); !ok {
		t.Fatal("expected fatal")
	}
	if len(out.Advisories()) != 0 {
		t.Fatalf("fatal outcome must not carry advisories, got %v", out.Advisories())
	}
}
