// Package telegram adapts the MTProto user API to the harvester.Client
// boundary.
package telegram

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/telegram/message/peer"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"

	"tg_harvest/internal/harvester"
	"tg_harvest/internal/ratelimit"
)

// dialogsLimit is the page size used when listing dialogs.
const dialogsLimit = 100

// Options holds the account credentials and the session location.
type Options struct {
	APIID       int
	APIHash     string
	Phone       string
	Password    string
	SessionPath string

	// CodeIn and CodeOut are used to prompt for the login code.
	CodeIn  io.Reader
	CodeOut io.Writer
}

// Client implements harvester.Client over a connected MTProto session.
type Client struct {
	api      *tg.Client
	resolver peer.Resolver
}

// Run connects, signs in when the stored session is not authorized and
// calls fn with a ready Client. The connection is closed when fn returns.
func Run(ctx context.Context, opts Options, fn func(ctx context.Context, c *Client) error) error {
	client := telegram.NewClient(opts.APIID, opts.APIHash, telegram.Options{
		SessionStorage: &telegram.FileSessionStorage{Path: opts.SessionPath},
	})

	return client.Run(ctx, func(ctx context.Context) error {
		flow := auth.NewFlow(
			auth.Constant(opts.Phone, opts.Password, auth.CodeAuthenticatorFunc(promptCode(opts.CodeIn, opts.CodeOut))),
			auth.SendCodeOptions{},
		)
		if err := client.Auth().IfNecessary(ctx, flow); err != nil {
			return fmt.Errorf("authenticate: %w", err)
		}

		api := client.API()
		return fn(ctx, &Client{api: api, resolver: peer.DefaultResolver(api)})
	})
}

func promptCode(in io.Reader, out io.Writer) func(ctx context.Context, _ *tg.AuthSentCode) (string, error) {
	return func(ctx context.Context, _ *tg.AuthSentCode) (string, error) {
		if _, err := fmt.Fprint(out, "Enter the code you received: "); err != nil {
			return "", err
		}
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("read code: %w", err)
		}
		return strings.TrimSpace(line), nil
	}
}

// ResolveEntity looks up a public username.
func (c *Client) ResolveEntity(ctx context.Context, endpoint string) (harvester.Entity, error) {
	p, err := c.resolver.ResolveDomain(ctx, endpoint)
	if err != nil {
		return harvester.Entity{}, wrapErr(err)
	}
	return harvester.Entity{Name: endpoint, Ref: p}, nil
}

// FetchRecords returns up to limit of the most recent messages.
func (c *Client) FetchRecords(ctx context.Context, entity harvester.Entity, limit int) ([]harvester.Message, error) {
	p, ok := entity.Ref.(tg.InputPeerClass)
	if !ok {
		return nil, fmt.Errorf("entity %s has no peer", entity.Name)
	}

	res, err := c.api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{Peer: p, Limit: limit})
	if err != nil {
		return nil, wrapErr(err)
	}
	return convertHistory(res), nil
}

// JoinChannel joins a public channel by username, or a private chat when
// the identifier is an invite hash starting with "+".
func (c *Client) JoinChannel(ctx context.Context, endpoint string) error {
	if hash, ok := strings.CutPrefix(endpoint, "+"); ok {
		_, err := c.api.MessagesImportChatInvite(ctx, hash)
		return wrapErr(err)
	}

	p, err := c.resolver.ResolveDomain(ctx, endpoint)
	if err != nil {
		return wrapErr(err)
	}
	ch, ok := p.(*tg.InputPeerChannel)
	if !ok {
		return fmt.Errorf("%s is not a channel or supergroup", endpoint)
	}
	_, err = c.api.ChannelsJoinChannel(ctx, &tg.InputChannel{ChannelID: ch.ChannelID, AccessHash: ch.AccessHash})
	return wrapErr(err)
}

// LeaveChannel leaves a channel, supergroup or basic group.
func (c *Client) LeaveChannel(ctx context.Context, entity harvester.Entity) error {
	switch p := entity.Ref.(type) {
	case *tg.InputPeerChannel:
		_, err := c.api.ChannelsLeaveChannel(ctx, &tg.InputChannel{ChannelID: p.ChannelID, AccessHash: p.AccessHash})
		return wrapErr(err)
	case *tg.InputPeerChat:
		_, err := c.api.MessagesDeleteChatUser(ctx, &tg.MessagesDeleteChatUserRequest{
			ChatID: p.ChatID,
			UserID: &tg.InputUserSelf{},
		})
		return wrapErr(err)
	default:
		return fmt.Errorf("cannot leave %s: unsupported peer %T", entity.Name, entity.Ref)
	}
}

// ListJoinedEndpoints returns every group and channel in the dialog list.
func (c *Client) ListJoinedEndpoints(ctx context.Context) ([]harvester.Entity, error) {
	chats, err := listDialogChats(ctx, c.api, dialogsLimit)
	if err != nil {
		return nil, wrapErr(err)
	}
	return groupEntities(chats), nil
}

type dialogsAPI interface {
	MessagesGetDialogs(ctx context.Context, req *tg.MessagesGetDialogsRequest) (tg.MessagesDialogsClass, error)
}

// listDialogChats pages through the dialog list, continuing from the top
// message of the last dialog of each page, and returns the distinct chats.
func listDialogChats(ctx context.Context, api dialogsAPI, pageSize int) ([]tg.ChatClass, error) {
	var (
		chats []tg.ChatClass
		seen  = map[int64]bool{}
		req   = &tg.MessagesGetDialogsRequest{OffsetPeer: &tg.InputPeerEmpty{}, Limit: pageSize}
		total int
	)
	for {
		res, err := api.MessagesGetDialogs(ctx, req)
		if err != nil {
			return nil, err
		}

		var page *tg.MessagesDialogsSlice
		switch d := res.(type) {
		case *tg.MessagesDialogs:
			page = &tg.MessagesDialogsSlice{Dialogs: d.Dialogs, Chats: d.Chats, Users: d.Users, Messages: d.Messages}
		case *tg.MessagesDialogsSlice:
			page = d
		default:
			return chats, nil
		}

		for _, ch := range page.Chats {
			if !seen[ch.GetID()] {
				seen[ch.GetID()] = true
				chats = append(chats, ch)
			}
		}
		total += len(page.Dialogs)

		if _, complete := res.(*tg.MessagesDialogs); complete {
			return chats, nil
		}
		if len(page.Dialogs) < pageSize || total >= page.Count {
			return chats, nil
		}

		next, ok := nextDialogsOffset(page)
		if !ok || (next.OffsetID == req.OffsetID && next.OffsetDate == req.OffsetDate) {
			return chats, nil
		}
		next.Limit = pageSize
		req = next
	}
}

// nextDialogsOffset builds the request continuing after the last dialog of page.
func nextDialogsOffset(page *tg.MessagesDialogsSlice) (*tg.MessagesGetDialogsRequest, bool) {
	var last *tg.Dialog
	for i := len(page.Dialogs) - 1; i >= 0 && last == nil; i-- {
		last, _ = page.Dialogs[i].(*tg.Dialog)
	}
	if last == nil {
		return nil, false
	}

	req := &tg.MessagesGetDialogsRequest{
		OffsetID:   last.TopMessage,
		OffsetPeer: inputPeer(last.Peer, page.Chats, page.Users),
	}
	key := peerKey(last.Peer)
	for _, m := range page.Messages {
		switch msg := m.(type) {
		case *tg.Message:
			if msg.ID == last.TopMessage && peerKey(msg.PeerID) == key {
				req.OffsetDate = msg.Date
			}
		case *tg.MessageService:
			if msg.ID == last.TopMessage && peerKey(msg.PeerID) == key {
				req.OffsetDate = msg.Date
			}
		}
	}
	return req, true
}

func inputPeer(p tg.PeerClass, chats []tg.ChatClass, users []tg.UserClass) tg.InputPeerClass {
	switch v := p.(type) {
	case *tg.PeerChat:
		return &tg.InputPeerChat{ChatID: v.ChatID}
	case *tg.PeerChannel:
		for _, c := range chats {
			switch ch := c.(type) {
			case *tg.Channel:
				if ch.ID == v.ChannelID {
					return &tg.InputPeerChannel{ChannelID: ch.ID, AccessHash: ch.AccessHash}
				}
			case *tg.ChannelForbidden:
				if ch.ID == v.ChannelID {
					return &tg.InputPeerChannel{ChannelID: ch.ID, AccessHash: ch.AccessHash}
				}
			}
		}
	case *tg.PeerUser:
		for _, u := range users {
			if user, ok := u.(*tg.User); ok && user.ID == v.UserID {
				return &tg.InputPeerUser{UserID: user.ID, AccessHash: user.AccessHash}
			}
		}
	}
	return &tg.InputPeerEmpty{}
}

func peerKey(p tg.PeerClass) string {
	switch p.(type) {
	case *tg.PeerUser:
		return "user:" + peerID(p)
	case *tg.PeerChat:
		return "chat:" + peerID(p)
	case *tg.PeerChannel:
		return "channel:" + peerID(p)
	}
	return ""
}

func groupEntities(chats []tg.ChatClass) []harvester.Entity {
	var out []harvester.Entity
	for _, c := range chats {
		switch ch := c.(type) {
		case *tg.Channel:
			name := ch.Username
			if name == "" {
				name = ch.Title
			}
			out = append(out, harvester.Entity{Name: name, Ref: &tg.InputPeerChannel{ChannelID: ch.ID, AccessHash: ch.AccessHash}})
		case *tg.ChannelForbidden:
			out = append(out, harvester.Entity{Name: ch.Title, Ref: &tg.InputPeerChannel{ChannelID: ch.ID, AccessHash: ch.AccessHash}})
		case *tg.Chat:
			out = append(out, harvester.Entity{Name: ch.Title, Ref: &tg.InputPeerChat{ChatID: ch.ID}})
		case *tg.ChatForbidden:
			out = append(out, harvester.Entity{Name: ch.Title, Ref: &tg.InputPeerChat{ChatID: ch.ID}})
		}
	}
	return out
}

func convertHistory(res tg.MessagesMessagesClass) []harvester.Message {
	var msgs []tg.MessageClass
	switch r := res.(type) {
	case *tg.MessagesMessages:
		msgs = r.Messages
	case *tg.MessagesMessagesSlice:
		msgs = r.Messages
	case *tg.MessagesChannelMessages:
		msgs = r.Messages
	}

	out := make([]harvester.Message, 0, len(msgs))
	for _, m := range msgs {
		msg, ok := m.(*tg.Message)
		if !ok {
			continue
		}
		out = append(out, harvester.Message{
			SenderID: senderID(msg),
			Text:     msg.Message,
			Date:     int64(msg.Date),
		})
	}
	return out
}

// senderID falls back to the chat peer for anonymous channel posts.
func senderID(msg *tg.Message) string {
	if from, ok := msg.GetFromID(); ok {
		if id := peerID(from); id != "" {
			return id
		}
	}
	return peerID(msg.PeerID)
}

func peerID(p tg.PeerClass) string {
	switch v := p.(type) {
	case *tg.PeerUser:
		return strconv.FormatInt(v.UserID, 10)
	case *tg.PeerChat:
		return strconv.FormatInt(v.ChatID, 10)
	case *tg.PeerChannel:
		return strconv.FormatInt(v.ChannelID, 10)
	}
	return ""
}

// wrapErr turns FLOOD_WAIT responses into *ratelimit.Error.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	if d, ok := tgerr.AsFloodWait(err); ok {
		return &ratelimit.Error{RetryAfter: int(d.Seconds()), Err: err}
	}
	return ratelimit.FromMessage(err)
}
