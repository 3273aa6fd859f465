package repair_tracker

import (
	"encoding/json"
	"testing"
)

func TestMessageJSON(t *testing.T) {
	cases := []struct {
		name string
		msg  Message
		want string
	}{
		{
			name: "empty update keeps data list",
			msg:  UpdateMessage(ChannelOrders),
			want: `{"channel":"orders","type":"update","data":[]}`,
		},
		{
			name: "delete carries keys",
			msg:  DeleteMessage(ChannelAssignees, "AS-1", "AS-2"),
			want: `{"channel":"assignees","type":"delete","data":["AS-1","AS-2"]}`,
		},
		{
			name: "error targets one connection",
			msg:  ErrorMessage("abc", "bad key"),
			want: `{"channel":"__messages__","type":"error","websocket_id":"abc","message":"bad key"}`,
		},
		{
			name: "connected",
			msg:  ConnectedMessage("abc"),
			want: `{"type":"connected","websocket_id":"abc"}`,
		},
		{
			name: "pong",
			msg:  PongMessage(),
			want: `{"type":"pong"}`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := json.Marshal(tc.msg)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if string(got) != tc.want {
				t.Fatalf("got %s\nwant %s", got, tc.want)
			}
		})
	}
}

func TestOrderChannel(t *testing.T) {
	ch := OrderChannel("RO-7")
	if ch != "order:RO-7" {
		t.Fatalf("channel=%q", ch)
	}
	key, ok := OrderKeyFromChannel(ch)
	if !ok || key != "RO-7" {
		t.Fatalf("key=%q ok=%v", key, ok)
	}
	for _, bad := range []string{"order:", "orders", "RO-7"} {
		if _, ok := OrderKeyFromChannel(bad); ok {
			t.Fatalf("%q accepted as order channel", bad)
		}
	}
	if !IsListChannel(ChannelStatuses) || IsListChannel(ChannelMessages) {
		t.Fatal("list channel classification wrong")
	}
}
