package utils

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/slack-go/slack"
)

var (
	slackClient *slack.Client
	slackOnce   sync.Once
)

func getSlackClient() *slack.Client {
	slackOnce.Do(func() {
		token := strings.TrimSpace(os.Getenv("SLACK_BOT_TOKEN"))
		if token == "" {
			return
		}
		slackClient = slack.New(token)
	})
	return slackClient
}

// LookupHandleByEmail resolves a portal user's email to a Slack user id.
// Returns ErrorHandleNotFound when no workspace member matches.
func LookupHandleByEmail(ctx context.Context, email string) (string, error) {
	client := getSlackClient()
	if client == nil {
		return "", ErrorHandleNotFound
	}

	user, err := client.GetUserByEmailContext(ctx, email)
	if err != nil {
		if strings.Contains(err.Error(), "users_not_found") {
			return "", ErrorHandleNotFound
		}
		return "", err
	}
	return user.ID, nil
}

// SendDirectMessage opens a DM conversation with the handle and posts text.
func SendDirectMessage(ctx context.Context, handle string, text string) error {
	client := getSlackClient()
	if client == nil {
		return ErrorHandleNotFound
	}

	channel, _, _, err := client.OpenConversationContext(ctx, &slack.OpenConversationParameters{
		Users: []string{handle},
	})
	if err != nil {
		return err
	}

	_, _, err = client.PostMessageContext(ctx, channel.ID, slack.MsgOptionText(text, false))
	return err
}
