package http

import (
	"encoding/json"
	"strconv"

	"github.com/kupantip/chat-server/internal/core"
	"github.com/kupantip/chat-server/internal/proto"
)

// inboundToCommand translates a wire frame into a hub command. A non-nil
// proto.Error means the frame was understood but rejected; a non-nil
// error means the frame was malformed and the connection should drop.
func inboundToCommand(inbound proto.Inbound) (*core.Command, *proto.Error, error) {
	switch inbound.Type {
	case proto.InboundTypeOnline:
		return &core.Command{Kind: core.CommandOnline}, nil, nil

	case proto.InboundTypeJoinRoom, proto.InboundTypeLeaveRoom:
		var data proto.RoomData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, nil, err
		}
		if data.RoomID == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "room_id is required"}, nil
		}
		kind := core.CommandJoinRoom
		if inbound.Type == proto.InboundTypeLeaveRoom {
			kind = core.CommandLeaveRoom
		}
		return &core.Command{Kind: kind, Room: data.RoomID}, nil, nil

	case proto.InboundTypeSendMessage:
		var data proto.SendMessageData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, nil, err
		}
		if data.RoomID == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "room_id is required"}, nil
		}
		return &core.Command{Kind: core.CommandSendMessage, Room: data.RoomID, Content: data.Content}, nil, nil

	case proto.InboundTypeTyping:
		var data proto.TypingData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, nil, err
		}
		if data.RoomID == "" {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "room_id is required"}, nil
		}
		return &core.Command{Kind: core.CommandTyping, Room: data.RoomID, IsTyping: data.IsTyping}, nil, nil

	default:
		return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "unknown frame type"}, nil
	}
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventNewMessage:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventNewMessage,
			Data:  messageData(event.Message),
		}

	case core.EventUserTyping:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventUserTyping,
			Data: proto.UserTypingData{
				RoomID:          event.Room,
				UserID:          event.UserID,
				UserHandle:      event.UserHandle,
				UserDisplayName: event.UserDisplayName,
				IsTyping:        event.IsTyping,
			},
		}

	case core.EventUserOnline, core.EventUserOffline:
		name := proto.EventUserOnline
		if event.Kind == core.EventUserOffline {
			name = proto.EventUserOffline
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: name,
			Data:  proto.PresenceData{UserID: event.UserID},
		}

	case core.EventHistory:
		messages := make([]proto.MessageData, 0, len(event.Messages))
		for _, msg := range event.Messages {
			messages = append(messages, messageData(msg))
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventHistory,
			Data:  proto.HistoryData{RoomID: event.Room, Messages: messages},
		}

	case core.EventError:
		if event.Error == nil {
			return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: core.ErrCodeInternal, Msg: "unknown error"}}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			Error: &proto.Error{Code: event.Error.Code, Msg: event.Error.Message},
		}

	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}
}

func messageData(msg core.Message) proto.MessageData {
	return proto.MessageData{
		ID:                strconv.FormatInt(msg.ID, 10),
		RoomID:            msg.RoomID,
		SenderID:          msg.SenderID,
		SenderHandle:      msg.SenderHandle,
		SenderDisplayName: msg.SenderDisplayName,
		Content:           msg.Content,
		TS:                msg.CreatedAt.Unix(),
	}
}
