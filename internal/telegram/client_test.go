package telegram

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"

	"tg_harvest/internal/harvester"
	"tg_harvest/internal/ratelimit"
)

func TestWrapErr(t *testing.T) {
	if wrapErr(nil) != nil {
		t.Fatal("expected nil for nil error")
	}

	flood := tgerr.New(420, "FLOOD_WAIT_30")
	var rl *ratelimit.Error
	if !errors.As(wrapErr(flood), &rl) {
		t.Fatalf("expected ratelimit.Error for %v", flood)
	}
	if rl.RetryAfter != 30 {
		t.Errorf("RetryAfter = %d, want 30", rl.RetryAfter)
	}
	if !errors.Is(wrapErr(flood), flood) {
		t.Error("wrapped error should keep the rpc error in its chain")
	}

	textual := errors.New("A wait of 12 seconds is required (caused by channels.JoinChannel)")
	if !errors.As(wrapErr(textual), &rl) || rl.RetryAfter != 12 {
		t.Errorf("textual wait not converted: %v", wrapErr(textual))
	}

	plain := tgerr.New(400, "USERNAME_NOT_OCCUPIED")
	if err := wrapErr(plain); errors.As(err, &rl) {
		t.Errorf("unexpected rate limit for %v", err)
	}
}

func TestSenderID(t *testing.T) {
	tests := []struct {
		name string
		msg  *tg.Message
		want string
	}{
		{
			name: "user sender",
			msg: func() *tg.Message {
				m := &tg.Message{PeerID: &tg.PeerChannel{ChannelID: 5}}
				m.SetFromID(&tg.PeerUser{UserID: 42})
				return m
			}(),
			want: "42",
		},
		{
			name: "anonymous channel post",
			msg:  &tg.Message{PeerID: &tg.PeerChannel{ChannelID: 777}},
			want: "777",
		},
		{
			name: "basic group without sender",
			msg:  &tg.Message{PeerID: &tg.PeerChat{ChatID: 9}},
			want: "9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := senderID(tt.msg); got != tt.want {
				t.Errorf("senderID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConvertHistory(t *testing.T) {
	from := &tg.Message{Message: "продам байк", Date: 1700000000, PeerID: &tg.PeerChannel{ChannelID: 1}}
	from.SetFromID(&tg.PeerUser{UserID: 10})

	res := &tg.MessagesChannelMessages{
		Messages: []tg.MessageClass{
			from,
			&tg.MessageService{ID: 2},
			&tg.Message{Message: "", Date: 1700000100, PeerID: &tg.PeerChannel{ChannelID: 1}},
		},
	}

	want := []harvester.Message{
		{SenderID: "10", Text: "продам байк", Date: 1700000000},
		{SenderID: "1", Text: "", Date: 1700000100},
	}
	if diff := cmp.Diff(want, convertHistory(res)); diff != "" {
		t.Errorf("convertHistory() mismatch (-want +got):\n%s", diff)
	}

	if got := convertHistory(&tg.MessagesMessagesNotModified{}); len(got) != 0 {
		t.Errorf("expected no messages, got %v", got)
	}
}

func TestGroupEntities(t *testing.T) {
	chats := []tg.ChatClass{
		&tg.Channel{ID: 1, AccessHash: 11, Username: "phangan_chat", Title: "Phangan"},
		&tg.Channel{ID: 2, AccessHash: 22, Title: "Private Channel"},
		&tg.Chat{ID: 3, Title: "Basic Group"},
		&tg.ChannelForbidden{ID: 4, AccessHash: 44, Title: "Banned"},
		&tg.ChatEmpty{ID: 5},
	}

	got := groupEntities(chats)
	want := []harvester.Entity{
		{Name: "phangan_chat", Ref: &tg.InputPeerChannel{ChannelID: 1, AccessHash: 11}},
		{Name: "Private Channel", Ref: &tg.InputPeerChannel{ChannelID: 2, AccessHash: 22}},
		{Name: "Basic Group", Ref: &tg.InputPeerChat{ChatID: 3}},
		{Name: "Banned", Ref: &tg.InputPeerChannel{ChannelID: 4, AccessHash: 44}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("groupEntities() mismatch (-want +got):\n%s", diff)
	}
}

type pagedDialogs struct {
	pages    []tg.MessagesDialogsClass
	requests []tg.MessagesGetDialogsRequest
}

func (p *pagedDialogs) MessagesGetDialogs(_ context.Context, req *tg.MessagesGetDialogsRequest) (tg.MessagesDialogsClass, error) {
	p.requests = append(p.requests, *req)
	if len(p.requests) > len(p.pages) {
		return nil, errors.New("unexpected extra page request")
	}
	return p.pages[len(p.requests)-1], nil
}

func TestListDialogChatsPages(t *testing.T) {
	api := &pagedDialogs{pages: []tg.MessagesDialogsClass{
		&tg.MessagesDialogsSlice{
			Count: 3,
			Dialogs: []tg.DialogClass{
				&tg.Dialog{Peer: &tg.PeerChannel{ChannelID: 1}, TopMessage: 50},
				&tg.Dialog{Peer: &tg.PeerChannel{ChannelID: 2}, TopMessage: 40},
			},
			Messages: []tg.MessageClass{
				&tg.Message{ID: 50, Date: 2000, PeerID: &tg.PeerChannel{ChannelID: 1}},
				&tg.Message{ID: 40, Date: 1500, PeerID: &tg.PeerChannel{ChannelID: 2}},
			},
			Chats: []tg.ChatClass{
				&tg.Channel{ID: 1, AccessHash: 11, Username: "phangan_chat"},
				&tg.Channel{ID: 2, AccessHash: 22, Username: "samui"},
			},
		},
		&tg.MessagesDialogsSlice{
			Count: 3,
			Dialogs: []tg.DialogClass{
				&tg.Dialog{Peer: &tg.PeerChat{ChatID: 3}, TopMessage: 7},
			},
			Messages: []tg.MessageClass{
				&tg.Message{ID: 7, Date: 1000, PeerID: &tg.PeerChat{ChatID: 3}},
			},
			Chats: []tg.ChatClass{
				&tg.Chat{ID: 3, Title: "Basic Group"},
				&tg.Channel{ID: 2, AccessHash: 22, Username: "samui"},
			},
		},
	}}

	chats, err := listDialogChats(context.Background(), api, 2)
	if err != nil {
		t.Fatalf("listDialogChats: %v", err)
	}

	want := []harvester.Entity{
		{Name: "phangan_chat", Ref: &tg.InputPeerChannel{ChannelID: 1, AccessHash: 11}},
		{Name: "samui", Ref: &tg.InputPeerChannel{ChannelID: 2, AccessHash: 22}},
		{Name: "Basic Group", Ref: &tg.InputPeerChat{ChatID: 3}},
	}
	if diff := cmp.Diff(want, groupEntities(chats)); diff != "" {
		t.Errorf("entities mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff(2, len(api.requests)); diff != "" {
		t.Fatalf("request count mismatch (-want +got):\n%s", diff)
	}
	second := api.requests[1]
	if second.OffsetID != 40 || second.OffsetDate != 1500 {
		t.Errorf("second page offset = id %d date %d, want id 40 date 1500", second.OffsetID, second.OffsetDate)
	}
	if diff := cmp.Diff(tg.InputPeerClass(&tg.InputPeerChannel{ChannelID: 2, AccessHash: 22}), second.OffsetPeer); diff != "" {
		t.Errorf("offset peer mismatch (-want +got):\n%s", diff)
	}
}

func TestListDialogChatsSingleResponse(t *testing.T) {
	api := &pagedDialogs{pages: []tg.MessagesDialogsClass{
		&tg.MessagesDialogs{
			Dialogs: []tg.DialogClass{&tg.Dialog{Peer: &tg.PeerChat{ChatID: 3}, TopMessage: 7}},
			Chats:   []tg.ChatClass{&tg.Chat{ID: 3, Title: "Basic Group"}},
		},
	}}

	chats, err := listDialogChats(context.Background(), api, 1)
	if err != nil {
		t.Fatalf("listDialogChats: %v", err)
	}
	if diff := cmp.Diff(1, len(chats)); diff != "" {
		t.Errorf("chat count mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(1, len(api.requests)); diff != "" {
		t.Errorf("request count mismatch (-want +got):\n%s", diff)
	}
}
