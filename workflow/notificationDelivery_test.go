package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"bitbucket.org/serviconsa/portal_backend/models"
	"bitbucket.org/serviconsa/portal_backend/utils"
	"github.com/sirupsen/logrus"
)

// recordingGateway captures every lookup and send for assertions.
type recordingGateway struct {
	handles   map[string]string
	lookupErr error
	sendErr   error
	lookups   []string
	sent      []string
}

func (g *recordingGateway) LookupHandle(ctx context.Context, email string) (string, error) {
	g.lookups = append(g.lookups, email)
	if g.lookupErr != nil {
		return "", g.lookupErr
	}
	handle, ok := g.handles[email]
	if !ok {
		return "", utils.ErrorHandleNotFound
	}
	return handle, nil
}

func (g *recordingGateway) SendDirectMessage(ctx context.Context, handle string, text string) error {
	g.sent = append(g.sent, fmt.Sprintf("%s|%s", handle, text))
	return g.sendErr
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestDeliverToUser_ResolvedHandleGetsTheMessage(t *testing.T) {
	gw := &recordingGateway{handles: map[string]string{"ana@serviconsa.mx": "U123"}}
	user := &models.User{ID: 1, Email: "ana@serviconsa.mx"}

	deliverToUser(context.Background(), quietLogger(), gw, user, "Proyecto 001-0002-03-00725 facturado.")

	if len(gw.sent) != 1 {
		t.Fatalf("expected 1 message sent, got %d", len(gw.sent))
	}
	if gw.sent[0] != "U123|Proyecto 001-0002-03-00725 facturado." {
		t.Fatalf("unexpected delivery: %q", gw.sent[0])
	}
}

func TestDeliverToUser_NoEmail_SkipsLookup(t *testing.T) {
	gw := &recordingGateway{}
	user := &models.User{ID: 2}

	deliverToUser(context.Background(), quietLogger(), gw, user, "hola")

	if len(gw.lookups) != 0 || len(gw.sent) != 0 {
		t.Fatalf("expected no gateway traffic, got lookups=%v sent=%v", gw.lookups, gw.sent)
	}
}

func TestDeliverToUser_HandleNotFound_SkipsSend(t *testing.T) {
	gw := &recordingGateway{handles: map[string]string{}}
	user := &models.User{ID: 3, Email: "nadie@serviconsa.mx"}

	deliverToUser(context.Background(), quietLogger(), gw, user, "hola")

	if len(gw.lookups) != 1 {
		t.Fatalf("expected 1 lookup, got %d", len(gw.lookups))
	}
	if len(gw.sent) != 0 {
		t.Fatalf("expected no send after a handle miss, got %v", gw.sent)
	}
}

func TestDeliverToUser_LookupFailure_SkipsSend(t *testing.T) {
	gw := &recordingGateway{lookupErr: errors.New("rate limited")}
	user := &models.User{ID: 4, Email: "luis@serviconsa.mx"}

	deliverToUser(context.Background(), quietLogger(), gw, user, "hola")

	if len(gw.sent) != 0 {
		t.Fatalf("expected no send after a lookup failure, got %v", gw.sent)
	}
}

func TestDeliverToUser_SendFailureIsSwallowed(t *testing.T) {
	gw := &recordingGateway{
		handles: map[string]string{"ana@serviconsa.mx": "U123"},
		sendErr: errors.New("channel archived"),
	}
	user := &models.User{ID: 5, Email: "ana@serviconsa.mx"}

	deliverToUser(context.Background(), quietLogger(), gw, user, "hola")

	if len(gw.sent) != 1 {
		t.Fatalf("expected the send to be attempted once, got %d", len(gw.sent))
	}
}
