package wyoming

import (
	"bytes"
	"errors"
	"io"
	"strconv"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteEvent_Transcript(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	require.NoError(t, w.WriteEvent(Transcript{Text: "hello world"}.Event()))

	assert.Equal(t, `{"type":"transcript","data":{"text":"hello world"},"version":"`+Version+`"}`+"\n", buf.String())
}

func TestWriteEvent_AudioChunkCarriesPayload(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	chunk := AudioChunk{AudioFormat: AudioFormat{Rate: 16000, Width: 2, Channels: 1}, Audio: []byte("abcd")}
	require.NoError(t, w.WriteEvent(chunk.Event()))

	line, payload, ok := strings.Cut(buf.String(), "\n")
	require.True(t, ok)
	assert.Contains(t, line, `"payload_length":4`)
	assert.Equal(t, "abcd", payload)
}

func TestReadEvent_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	chunk := AudioChunk{AudioFormat: AudioFormat{Rate: 16000, Width: 2, Channels: 1}, Audio: []byte{0x01, 0x02, 0x0a, 0xff}}
	require.NoError(t, w.WriteEvent(Describe{}.Event()))
	require.NoError(t, w.WriteEvent(chunk.Event()))
	require.NoError(t, w.WriteEvent(AudioStop{}.Event()))

	r := NewReader(&buf, DefaultLimits())

	ev, err := r.ReadEvent()
	require.NoError(t, err)
	assert.Equal(t, TypeDescribe, ev.Type)
	assert.Nil(t, ev.Payload)

	ev, err = r.ReadEvent()
	require.NoError(t, err)
	assert.Equal(t, TypeAudioChunk, ev.Type)
	got := AudioChunkFromEvent(ev)
	assert.Equal(t, chunk.Audio, got.Audio)
	assert.Equal(t, 16000, got.Rate)
	assert.Equal(t, 2, got.Width)
	assert.Equal(t, 1, got.Channels)

	ev, err = r.ReadEvent()
	require.NoError(t, err)
	assert.Equal(t, TypeAudioStop, ev.Type)

	_, err = r.ReadEvent()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadEvent_OneByteReads(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteEvent(AudioChunk{Audio: []byte("ab")}.Event()))
	require.NoError(t, w.WriteEvent(AudioChunk{Audio: []byte("cd\n")}.Event()))
	require.NoError(t, w.WriteEvent(AudioStop{}.Event()))

	r := NewReader(iotest.OneByteReader(&buf), DefaultLimits())

	var audio []byte
	var types []Type
	for {
		ev, err := r.ReadEvent()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		types = append(types, ev.Type)
		audio = append(audio, ev.Payload...)
	}

	assert.Equal(t, []Type{TypeAudioChunk, TypeAudioChunk, TypeAudioStop}, types)
	assert.Equal(t, "abcd\n", string(audio))
}

func TestReadEvent_DataSectionMergesOverInlineData(t *testing.T) {
	data := `{"text":"from section","code":"x"}`
	stream := `{"type":"error","data":{"text":"inline"},"data_length":` + strconv.Itoa(len(data)) + "}\n" + data

	r := NewReader(strings.NewReader(stream), DefaultLimits())
	ev, err := r.ReadEvent()
	require.NoError(t, err)

	got := ErrorFromEvent(ev)
	assert.Equal(t, "from section", got.Text)
	assert.Equal(t, "x", got.Code)
}

func TestReadEvent_DataSectionAndPayload(t *testing.T) {
	data := `{"rate":22050,"width":2,"channels":1}`
	stream := `{"type":"audio-chunk","data_length":` + strconv.Itoa(len(data)) + `,"payload_length":3}` + "\n" + data + "xyz"

	r := NewReader(strings.NewReader(stream), DefaultLimits())
	ev, err := r.ReadEvent()
	require.NoError(t, err)

	chunk := AudioChunkFromEvent(ev)
	assert.Equal(t, 22050, chunk.Rate)
	assert.Equal(t, []byte("xyz"), chunk.Audio)
}

func TestReadEvent_UnknownTypeIsNotAnError(t *testing.T) {
	r := NewReader(strings.NewReader(`{"type":"run-satellite","data":{"x":1}}`+"\n"), DefaultLimits())

	ev, err := r.ReadEvent()
	require.NoError(t, err)
	assert.Equal(t, Type("run-satellite"), ev.Type)
	n, ok := ev.IntField("x")
	assert.True(t, ok)
	assert.Equal(t, 1, n)
}

func TestReadEvent_Malformed(t *testing.T) {
	limits := Limits{MaxHeaderBytes: 128, MaxPayloadBytes: 8}

	tests := []struct {
		name   string
		stream string
	}{
		{"not json", "hello\n"},
		{"blank line", "\n"},
		{"missing type", `{"data":{}}` + "\n"},
		{"header too long", `{"type":"describe","data":{"pad":"` + strings.Repeat("a", 200) + `"}}` + "\n"},
		{"payload too large", `{"type":"audio-chunk","payload_length":9}` + "\n123456789"},
		{"negative payload", `{"type":"audio-chunk","payload_length":-1}` + "\n"},
		{"data section too large", `{"type":"error","data_length":129}` + "\n"},
		{"data section not json", `{"type":"error","data_length":3}` + "\nabc"},
		{"audio-chunk without payload", `{"type":"audio-chunk"}` + "\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReader(strings.NewReader(tt.stream), limits)
			_, err := r.ReadEvent()
			assert.ErrorIs(t, err, ErrMalformedFrame)
		})
	}
}

func TestReadEvent_TruncatedFrame(t *testing.T) {
	tests := []struct {
		name   string
		stream string
	}{
		{"partial header", `{"type":"desc`},
		{"partial payload", `{"type":"audio-chunk","payload_length":10}` + "\nabc"},
		{"missing data section", `{"type":"error","data_length":10}` + "\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReader(strings.NewReader(tt.stream), DefaultLimits())
			_, err := r.ReadEvent()
			assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
		})
	}
}

func TestInfo_EventRoundTrip(t *testing.T) {
	info := Info{
		Asr: []AsrProgram{{
			Name:        "deepgram",
			Attribution: Attribution{Name: "Deepgram", URL: "https://deepgram.com"},
			Installed:   true,
			Version:     "1.0",
			Models: []AsrModel{{
				Name:      "nova-3",
				Installed: true,
				Languages: []string{"en"},
			}},
		}},
	}

	var buf bytes.Buffer
	require.NoError(t, NewWriter(&buf).WriteEvent(info.Event()))

	ev, err := NewReader(&buf, DefaultLimits()).ReadEvent()
	require.NoError(t, err)
	assert.Equal(t, TypeInfo, ev.Type)
	assert.Equal(t, []any{}, ev.Data["tts"])

	got, err := InfoFromEvent(ev)
	require.NoError(t, err)
	require.Len(t, got.Asr, 1)
	assert.Equal(t, "deepgram", got.Asr[0].Name)
	assert.Equal(t, []string{"en"}, got.Asr[0].Models[0].Languages)
}

func TestInfo_EventWithoutSerialization(t *testing.T) {
	ev := Info{}.Event()

	assert.Equal(t, TypeInfo, ev.Type)
	assert.Equal(t, []AsrProgram{}, ev.Data["asr"])
	for _, key := range []string{"tts", "handle", "intent", "wake"} {
		assert.Equal(t, []any{}, ev.Data[key], key)
	}

	info := Info{Asr: []AsrProgram{{Name: "mock", Installed: true, Models: []AsrModel{{Name: "mock"}}}}}
	got, err := InfoFromEvent(info.Event())
	require.NoError(t, err)
	require.Len(t, got.Asr, 1)
	assert.Equal(t, "mock", got.Asr[0].Name)
}

func TestAudioStart_FormatSurvivesWire(t *testing.T) {
	var buf bytes.Buffer
	sent := AudioStart{AudioFormat: AudioFormat{Rate: 22050, Width: 2, Channels: 1}}
	require.NoError(t, NewWriter(&buf).WriteEvent(sent.Event()))

	ev, err := NewReader(&buf, DefaultLimits()).ReadEvent()
	require.NoError(t, err)
	require.Equal(t, TypeAudioStart, ev.Type)
	assert.Equal(t, sent, AudioStartFromEvent(ev))
}
