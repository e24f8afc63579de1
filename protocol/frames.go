package protocol

import "time"

// Builders for the outbound frames the client emits. They always produce
// envelopes that pass validate, so Encode cannot fail on them.

func BuildConnect(uid int64, token string) *Envelope {
	return &Envelope{
		Namespace: NamespaceLink,
		UID:       uid,
		Token:     token,
		Type:      LinkConnect,
		Timestamp: time.Now().UnixMilli(),
	}
}

func BuildDisconnect(uid int64, token string) *Envelope {
	return &Envelope{
		Namespace: NamespaceLink,
		UID:       uid,
		Token:     token,
		Type:      LinkDisconnect,
		Timestamp: time.Now().UnixMilli(),
	}
}

func BuildHeartbeat(uid int64, token string) *Envelope {
	content := HeartbeatPayload
	return &Envelope{
		Namespace: NamespaceLink,
		UID:       uid,
		Token:     token,
		Type:      LinkHeartbeat,
		Content:   &content,
		Timestamp: time.Now().UnixMilli(),
	}
}

func BuildJoin(uid int64, token string, roomID int64) *Envelope {
	return &Envelope{
		Namespace: NamespaceRoom,
		UID:       uid,
		Token:     token,
		Type:      RoomJoin,
		TargetID:  &roomID,
		Timestamp: time.Now().UnixMilli(),
	}
}

func BuildLeave(uid int64, token string, roomID int64) *Envelope {
	return &Envelope{
		Namespace: NamespaceRoom,
		UID:       uid,
		Token:     token,
		Type:      RoomLeave,
		TargetID:  &roomID,
		Timestamp: time.Now().UnixMilli(),
	}
}

func BuildChatMessage(uid int64, token string, roomID int64, content string) *Envelope {
	return &Envelope{
		Namespace: NamespaceRoom,
		UID:       uid,
		Token:     token,
		Type:      RoomMessage,
		TargetID:  &roomID,
		Content:   &content,
		Timestamp: time.Now().UnixMilli(),
	}
}
