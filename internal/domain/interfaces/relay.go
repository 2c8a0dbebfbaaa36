package interfaces

import (
	"context"

	domaintypes "securechat/internal/domain/types"
)

// RelayClient is how we talk to the key directory and mailbox, all with context.
type RelayClient interface {
	PublishBundle(
		ctx context.Context,
		user domaintypes.ContactID,
		bundle domaintypes.PreKeyBundle,
	) error
	FetchBundles(
		ctx context.Context,
		user domaintypes.ContactID,
	) ([]domaintypes.PreKeyBundle, error)

	SendMessage(ctx context.Context, envelope domaintypes.Envelope) error
	FetchMessages(
		ctx context.Context,
		user domaintypes.ContactID,
		limit int,
	) ([]domaintypes.Envelope, error)
	AckMessages(ctx context.Context, user domaintypes.ContactID, ids []string) error
}
