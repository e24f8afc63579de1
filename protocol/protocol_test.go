package protocol

import (
	"errors"
	"reflect"
	"testing"

	"github.com/xexgm/chatlink/tools/errs"
)

func i64(v int64) *int64   { return &v }
func str(v string) *string { return &v }

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		env  *Envelope
	}{
		{"connect", &Envelope{Namespace: NamespaceLink, UID: 1, Token: "t", Type: LinkConnect, Timestamp: 1000}},
		{"heartbeat", &Envelope{Namespace: NamespaceLink, UID: 1, Token: "t", Type: LinkHeartbeat, Content: str("ping"), Timestamp: 1000}},
		{"join", &Envelope{Namespace: NamespaceRoom, UID: 7, Token: "t", Type: RoomJoin, TargetID: i64(42), Timestamp: 2000}},
		{"message", &Envelope{Namespace: NamespaceRoom, UID: 7, Token: "t", Type: RoomMessage, TargetID: i64(42), Content: str("hello"), Timestamp: 3000}},
		{"leave", &Envelope{Namespace: NamespaceRoom, UID: 7, Token: "t", Type: RoomLeave, TargetID: i64(42), Timestamp: 4000}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := Encode(tc.env)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			got, err := Decode(data)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !reflect.DeepEqual(got, tc.env) {
				t.Errorf("round trip mismatch: got %+v want %+v", got, tc.env)
			}
		})
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"not json", `garbage`},
		{"missing namespace", `{"uid":1,"token":"t","type":0,"timestamp":1}`},
		{"missing type", `{"namespace":0,"uid":1,"token":"t","timestamp":1}`},
		{"missing uid", `{"namespace":0,"token":"t","type":0,"timestamp":1}`},
		{"missing timestamp", `{"namespace":0,"uid":1,"token":"t","type":0}`},
		{"unknown namespace", `{"namespace":9,"uid":1,"token":"t","type":0,"timestamp":1}`},
		{"unknown type", `{"namespace":0,"uid":1,"token":"t","type":9,"timestamp":1}`},
		{"zero uid", `{"namespace":0,"uid":0,"token":"t","type":0,"timestamp":1}`},
		{"empty token", `{"namespace":0,"uid":1,"token":"","type":0,"timestamp":1}`},
		{"room without target", `{"namespace":1,"uid":1,"token":"t","type":0,"timestamp":1}`},
		{"room message without content", `{"namespace":1,"uid":1,"token":"t","type":1,"targetId":42,"timestamp":1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode([]byte(tc.data))
			if err == nil {
				t.Fatal("expected decode error")
			}
			if !errors.Is(err, errs.ErrProtocol) {
				t.Errorf("want ErrProtocol, got %v", err)
			}
		})
	}
}

func TestEventNameTable(t *testing.T) {
	cases := []struct {
		ns   Namespace
		typ  MsgType
		want string
	}{
		{NamespaceLink, LinkConnect, "link.connect"},
		{NamespaceLink, LinkDisconnect, "link.disconnect"},
		{NamespaceLink, LinkHeartbeat, "link.heartbeat"},
		{NamespaceRoom, RoomJoin, "room.join"},
		{NamespaceRoom, RoomMessage, "room.message"},
		{NamespaceRoom, RoomLeave, "room.leave"},
	}
	for _, tc := range cases {
		name, ok := EventName(tc.ns, tc.typ)
		if !ok || name != tc.want {
			t.Errorf("EventName(%d,%d) = %q,%v want %q", tc.ns, tc.typ, name, ok, tc.want)
		}
	}
	if _, ok := EventName(Namespace(3), MsgType(0)); ok {
		t.Error("unknown namespace reported as known")
	}
	if Known(NamespaceLink, MsgType(7)) {
		t.Error("unknown type reported as known")
	}
}

func TestBuildersProduceValidEnvelopes(t *testing.T) {
	envs := []*Envelope{
		BuildConnect(1, "t"),
		BuildDisconnect(1, "t"),
		BuildHeartbeat(1, "t"),
		BuildJoin(1, "t", 42),
		BuildLeave(1, "t", 42),
		BuildChatMessage(1, "t", 42, "hi"),
	}
	for _, env := range envs {
		if _, err := Encode(env); err != nil {
			t.Errorf("builder produced invalid envelope %v: %v", env, err)
		}
	}

	hb := BuildHeartbeat(1, "t")
	if hb.Content == nil || *hb.Content != HeartbeatPayload {
		t.Errorf("heartbeat content = %v, want %q", hb.Content, HeartbeatPayload)
	}
	join := BuildJoin(1, "t", 42)
	if join.TargetID == nil || *join.TargetID != 42 {
		t.Errorf("join targetId = %v, want 42", join.TargetID)
	}
	if join.Content != nil {
		t.Error("join is a control message, content must be null")
	}
}
