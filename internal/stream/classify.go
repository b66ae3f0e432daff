package stream

import (
	"bytes"
	"encoding/json"
	"errors"
)

var (
	// ErrMalformedFrame is returned by Classify for payloads that are not valid JSON.
	ErrMalformedFrame = errors.New("stream: malformed frame")
	// ErrUnknownShape is returned by Classify for valid JSON matching no known event.
	ErrUnknownShape = errors.New("stream: unknown frame shape")
)

// Classify turns one frame payload (the text after "data: ") into an Event.
//
// Shapes are checked in a fixed order: done, explicit type tag,
// generating_image, images, image_error, content. The first match wins.
func Classify(payload []byte) (Event, error) {
	if !json.Valid(payload) {
		return Event{}, ErrMalformedFrame
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(payload, &obj); err != nil || obj == nil {
		return Event{}, ErrUnknownShape
	}

	if isTrue(obj["done"]) {
		ev := Event{Kind: KindDone}
		ev.ChatID, _ = stringField(obj, "chat_id")
		if ev.ChatID == "" {
			ev.ChatID, _ = stringField(obj, "room_id")
		}
		if raw, ok := obj["crawl_sources"]; ok {
			var sources []Source
			if json.Unmarshal(raw, &sources) == nil {
				ev.CrawlSources = sources
			}
		}
		return ev, nil
	}

	if typ, _ := stringField(obj, "type"); typ != "" {
		switch typ {
		case "agent_thought":
			content, _ := stringField(obj, "content")
			status, _ := stringField(obj, "status")
			return Event{Kind: KindAgentThought, Content: content, Status: status}, nil
		case "agent_status":
			raw := make(json.RawMessage, len(payload))
			copy(raw, payload)
			return Event{Kind: KindAgentStatus, Raw: raw}, nil
		}
	}

	if isTrue(obj["generating_image"]) {
		return Event{Kind: KindImageGenerating}, nil
	}

	if raw, ok := obj["images"]; ok {
		var images []GeneratedImage
		if json.Unmarshal(raw, &images) == nil && images != nil {
			return Event{Kind: KindImagesReady, Images: images}, nil
		}
	}

	if raw, ok := obj["image_error"]; ok && !isNull(raw) {
		msg, ok := stringField(obj, "image_error")
		if !ok {
			msg = string(bytes.TrimSpace(raw))
		}
		return Event{Kind: KindImageError, Error: msg}, nil
	}

	if content, _ := stringField(obj, "content"); content != "" {
		return Event{Kind: KindTextDelta, Content: content}, nil
	}

	return Event{}, ErrUnknownShape
}

func isTrue(raw json.RawMessage) bool {
	var b bool
	return raw != nil && json.Unmarshal(raw, &b) == nil && b
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func stringField(obj map[string]json.RawMessage, key string) (string, bool) {
	raw, ok := obj[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}
