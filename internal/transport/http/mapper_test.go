package http

import (
	"encoding/json"
	"testing"

	"github.com/kupantip/chat-server/internal/core"
	"github.com/kupantip/chat-server/internal/proto"
)

func TestInboundToCommand(t *testing.T) {
	join := proto.Inbound{Type: proto.InboundTypeJoinRoom, Data: mustJSON(t, proto.RoomData{RoomID: "7"})}
	cmd, protoErr, err := inboundToCommand(join)
	if err != nil || protoErr != nil {
		t.Fatalf("join: unexpected errors %v %v", err, protoErr)
	}
	if cmd.Kind != core.CommandJoinRoom || cmd.Room != "7" {
		t.Errorf("unexpected join command: %+v", cmd)
	}

	// A frame with a missing room is rejected without dropping the connection.
	empty := proto.Inbound{Type: proto.InboundTypeSendMessage, Data: mustJSON(t, proto.SendMessageData{Content: "hi"})}
	cmd, protoErr, err = inboundToCommand(empty)
	if err != nil {
		t.Fatalf("unexpected hard error: %v", err)
	}
	if cmd != nil || protoErr == nil || protoErr.Code != core.ErrCodeBadRequest {
		t.Errorf("expected bad_request, got cmd=%+v err=%+v", cmd, protoErr)
	}

	// Unknown types are rejected the same way.
	_, protoErr, err = inboundToCommand(proto.Inbound{Type: "selfdestruct"})
	if err != nil || protoErr == nil {
		t.Errorf("expected protocol error for unknown type, got %v %v", err, protoErr)
	}

	// Malformed payloads are a hard error.
	if _, _, err := inboundToCommand(proto.Inbound{Type: proto.InboundTypeTyping, Data: []byte("{")}); err == nil {
		t.Error("expected error for malformed payload")
	}
}

func TestOutboundFromEvent(t *testing.T) {
	out := outboundFromEvent(&core.Event{
		Kind: core.EventNewMessage,
		Room: "7",
		Message: core.Message{
			ID:           42,
			RoomID:       "7",
			SenderID:     3,
			SenderHandle: "alice",
			Content:      "hi",
		},
	})
	if out.Type != proto.OutboundTypeEvent || out.Event != proto.EventNewMessage {
		t.Fatalf("unexpected envelope: %+v", out)
	}
	data, ok := out.Data.(proto.MessageData)
	if !ok {
		t.Fatalf("unexpected payload type %T", out.Data)
	}
	if data.ID != "42" || data.RoomID != "7" || data.SenderHandle != "alice" {
		t.Errorf("unexpected payload: %+v", data)
	}

	out = outboundFromEvent(&core.Event{Kind: core.EventError, Error: &core.CoreError{Code: "not_in_room", Message: "join first"}})
	if out.Type != proto.OutboundTypeError || out.Error == nil || out.Error.Code != "not_in_room" {
		t.Errorf("unexpected error envelope: %+v", out)
	}
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return raw
}
