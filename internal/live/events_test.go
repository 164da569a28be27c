package live

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestTranslateOrdersEventsWithinMessage(t *testing.T) {
	msg := &genai.LiveServerMessage{
		ServerContent: &genai.LiveServerContent{
			InputTranscription: &genai.Transcription{Text: "I used channels"},
			Interrupted:        true,
			ModelTurn: &genai.Content{Parts: []*genai.Part{
				{Text: "Good."},
				{InlineData: &genai.Blob{MIMEType: "audio/pcm;rate=24000", Data: []byte{1, 2}}},
				{Text: "planning the next question", Thought: true},
				nil,
			}},
			OutputTranscription: &genai.Transcription{Text: "Good. Next"},
			TurnComplete:        true,
		},
		GoAway: &genai.LiveServerGoAway{TimeLeft: 5 * time.Second},
	}

	events := translate(msg, false)
	require.Equal(t, []Event{
		{Kind: EventUserTranscript, Text: "I used channels"},
		{Kind: EventInterrupted},
		{Kind: EventModelTurn, Parts: []Part{
			{Text: "Good."},
			{Audio: []byte{1, 2}, MIMEType: "audio/pcm;rate=24000"},
		}},
		{Kind: EventModelTurn, Parts: []Part{{Text: "Good. Next"}}},
		{Kind: EventTurnComplete},
		{Kind: EventGoAway, TimeLeft: 5 * time.Second},
	}, events)
}

func TestTranslateTakesModelTextFromTranscriptionOnly(t *testing.T) {
	audio := &genai.Blob{MIMEType: "audio/pcm;rate=24000", Data: []byte{1, 2}}
	spoken := &genai.LiveServerMessage{ServerContent: &genai.LiveServerContent{
		ModelTurn: &genai.Content{Parts: []*genai.Part{{Text: "Good."}, {InlineData: audio}}},
	}}
	transcript := &genai.LiveServerMessage{ServerContent: &genai.LiveServerContent{
		OutputTranscription: &genai.Transcription{Text: "Good."},
	}}

	var texts []string
	for _, msg := range []*genai.LiveServerMessage{spoken, transcript} {
		for _, ev := range translate(msg, true) {
			require.Equal(t, EventModelTurn, ev.Kind)
			for _, part := range ev.Parts {
				if !part.IsAudio() {
					texts = append(texts, part.Text)
				}
			}
		}
	}
	require.Equal(t, []string{"Good."}, texts)

	require.Empty(t, translate(&genai.LiveServerMessage{ServerContent: &genai.LiveServerContent{
		ModelTurn: &genai.Content{Parts: []*genai.Part{{Text: "only text"}}},
	}}, true))
}

func TestTranslateSkipsEmptyContent(t *testing.T) {
	require.Nil(t, translate(nil, false))
	require.Empty(t, translate(&genai.LiveServerMessage{SetupComplete: &genai.LiveServerSetupComplete{}}, false))
	require.Empty(t, translate(&genai.LiveServerMessage{ServerContent: &genai.LiveServerContent{
		InputTranscription: &genai.Transcription{},
		ModelTurn:          &genai.Content{Parts: []*genai.Part{{Thought: true, Text: "x"}}},
	}}, false))
}

func TestEventKindString(t *testing.T) {
	require.Equal(t, "model_turn", EventModelTurn.String())
	require.Equal(t, "closed", EventClosed.String())
	require.Equal(t, "unknown", EventKind(0).String())
}

func TestPartIsAudio(t *testing.T) {
	require.True(t, Part{Audio: []byte{0}}.IsAudio())
	require.False(t, Part{Text: "hi"}.IsAudio())
}
