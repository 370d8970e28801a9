package harvester

import "context"

// Entity is a resolved remote chat. Ref is the client-specific handle.
type Entity struct {
	Name string
	Ref  any
}

// Message is one item of a chat history as returned by the remote API.
type Message struct {
	SenderID string
	Text     string
	Date     int64
}

// Client is the remote messaging API. Implementations report throttling
// as *ratelimit.Error.
type Client interface {
	ResolveEntity(ctx context.Context, endpoint string) (Entity, error)
	FetchRecords(ctx context.Context, entity Entity, limit int) ([]Message, error)
	JoinChannel(ctx context.Context, endpoint string) error
	LeaveChannel(ctx context.Context, entity Entity) error
	ListJoinedEndpoints(ctx context.Context) ([]Entity, error)
}
