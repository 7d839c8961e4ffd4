package workflow

import (
	"context"

	"bitbucket.org/serviconsa/portal_backend/utils"
)

// MessagingGateway resolves a user identity to a messaging handle and
// delivers a direct text message. Delivery is advisory: failures are logged
// by callers and never propagate.
type MessagingGateway interface {
	LookupHandle(ctx context.Context, email string) (string, error)
	SendDirectMessage(ctx context.Context, handle string, text string) error
}

// ObjectStore is the file side of a project: deletes and retention-class
// downgrades, fire-and-forget relative to the document update.
type ObjectStore interface {
	Delete(ctx context.Context, url string) error
	SetRetentionClass(ctx context.Context, url string, class string) error
}

type slackGateway struct{}

func (slackGateway) LookupHandle(ctx context.Context, email string) (string, error) {
	return utils.LookupHandleByEmail(ctx, email)
}

func (slackGateway) SendDirectMessage(ctx context.Context, handle string, text string) error {
	return utils.SendDirectMessage(ctx, handle, text)
}

// DefaultMessagingGateway is the Slack-backed gateway used in production.
func DefaultMessagingGateway() MessagingGateway {
	return slackGateway{}
}

type gcsObjectStore struct{}

func (gcsObjectStore) Delete(ctx context.Context, url string) error {
	return utils.DeleteObjectByURL(ctx, url)
}

func (gcsObjectStore) SetRetentionClass(ctx context.Context, url string, class string) error {
	return utils.SetRetentionClassByURL(ctx, url, class)
}

// DefaultObjectStore is the GCS-backed store used in production.
func DefaultObjectStore() ObjectStore {
	return gcsObjectStore{}
}
