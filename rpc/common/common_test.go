package common

import (
	"encoding/json"
	"testing"

	"github.com/lni/dragonboat/v4/logger"
)

func TestParseServerShard(t *testing.T) {
	tests := []struct {
		in      string
		want    ServerShard
		wantErr bool
	}{
		{in: "1=service,endpoint@bstore", want: ServerShard{ShardID: 1, Levels: []string{"service", "endpoint"}, Store: ShardStoreBolt}},
		{in: "2=a", want: ServerShard{ShardID: 2, Levels: []string{"a"}, Store: ShardStoreLocal}},
		{in: " 3= a , b @dstore", want: ServerShard{ShardID: 3, Levels: []string{"a", "b"}, Store: ShardStoreDistributed}},
		{in: "4=a,b@dstore", want: ServerShard{ShardID: 4, Levels: []string{"a", "b"}, Store: ShardStoreDistributed}},
		{in: "x=a", wantErr: true},
		{in: "1", wantErr: true},
		{in: "1=@lstore", wantErr: true},
		{in: "1=a@redis", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseServerShard(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.String() != tc.want.String() {
				t.Errorf("got %s, want %s", got, tc.want)
			}
			back, err := ParseServerShard(got.String())
			if err != nil || back.String() != got.String() {
				t.Errorf("String() does not parse back: %v", err)
			}
		})
	}
}

func TestMessageTypeJSON(t *testing.T) {
	for _, mt := range []MessageType{MsgTUnknown, MsgTSuccess, MsgTError, MsgTSync, MsgTGetSchema, MsgTGet, MsgTChildren} {
		b, err := json.Marshal(mt)
		if err != nil {
			t.Fatalf("marshal %v: %v", mt, err)
		}
		var got MessageType
		if err := json.Unmarshal(b, &got); err != nil {
			t.Fatalf("unmarshal %s: %v", b, err)
		}
		if got != mt {
			t.Errorf("got %v, want %v", got, mt)
		}
	}

	var mt MessageType
	if err := json.Unmarshal([]byte(`"setE"`), &mt); err == nil {
		t.Error("expected error for unknown message type")
	}
}

func TestParseLogLevel(t *testing.T) {
	lvl, err := ParseLogLevel("WARN")
	if err != nil || lvl != logger.WARNING {
		t.Errorf("got %v, %v", lvl, err)
	}
	if _, err := ParseLogLevel("verbose"); err == nil {
		t.Error("expected error for invalid level")
	}
	if err := InitLoggers("verbose"); err == nil {
		t.Error("expected InitLoggers to reject invalid level")
	}
}
