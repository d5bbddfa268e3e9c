package wyoming

import "encoding/json"

// Attribution credits the people or company behind a program or model.
type Attribution struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// AsrModel describes one speech recognition model.
type AsrModel struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Attribution Attribution `json:"attribution"`
	Installed   bool        `json:"installed"`
	Version     string      `json:"version,omitempty"`
	Languages   []string    `json:"languages"`
}

// AsrProgram describes a speech recognition service and its models.
type AsrProgram struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Attribution Attribution `json:"attribution"`
	Installed   bool        `json:"installed"`
	Version     string      `json:"version,omitempty"`
	Models      []AsrModel  `json:"models"`
}

// Info is the capability descriptor sent in reply to describe.
type Info struct {
	Asr    []AsrProgram `json:"asr"`
	Tts    []any        `json:"tts"`
	Handle []any        `json:"handle"`
	Intent []any        `json:"intent"`
	Wake   []any        `json:"wake"`
}

// Event encodes the descriptor as an info event. Empty sections are sent
// as empty lists.
func (i Info) Event() Event {
	asr := i.Asr
	if asr == nil {
		asr = []AsrProgram{}
	}
	return Event{Type: TypeInfo, Data: map[string]any{
		"asr":    asr,
		"tts":    orEmpty(i.Tts),
		"handle": orEmpty(i.Handle),
		"intent": orEmpty(i.Intent),
		"wake":   orEmpty(i.Wake),
	}}
}

func orEmpty(v []any) []any {
	if v == nil {
		return []any{}
	}
	return v
}

// InfoFromEvent decodes an info event.
func InfoFromEvent(e Event) (Info, error) {
	var info Info
	raw, err := json.Marshal(e.Data)
	if err != nil {
		return info, err
	}
	err = json.Unmarshal(raw, &info)
	return info, err
}
