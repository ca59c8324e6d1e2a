package notify

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/keshon/lyrabot/pkg/retrylimit"
)

type fakeSender struct {
	mu      sync.Mutex
	sent    map[string][]*discordgo.MessageEmbed
	dmErr   error
	sendErr []error
	calls   int
}

func newFakeSender() *fakeSender {
	return &fakeSender{sent: map[string][]*discordgo.MessageEmbed{}}
}

func (f *fakeSender) DMChannel(userID string) (string, error) {
	if f.dmErr != nil {
		return "", f.dmErr
	}
	return "dm-" + userID, nil
}

func (f *fakeSender) SendEmbed(channelID string, e *discordgo.MessageEmbed) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.sendErr) > 0 {
		err := f.sendErr[0]
		f.sendErr = f.sendErr[1:]
		return err
	}
	f.sent[channelID] = append(f.sent[channelID], e)
	return nil
}

func restErr(status, code int) error {
	e := &discordgo.RESTError{Response: &http.Response{StatusCode: status}}
	if code != 0 {
		e.Message = &discordgo.APIErrorMessage{Code: code, Message: "x"}
	}
	return e
}

func newNotifier(t *testing.T, s Sender) *Notifier {
	return New(s, retrylimit.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}, zaptest.NewLogger(t).Sugar())
}

func TestDirectEmbedDelivers(t *testing.T) {
	s := newFakeSender()
	n := newNotifier(t, s)

	require.NoError(t, n.DirectEmbed(context.Background(), "u1", PremiumExpiredEmbed()))
	require.Len(t, s.sent["dm-u1"], 1)
	assert.Contains(t, s.sent["dm-u1"][0].Title, "Premium Access Expired")
}

func TestClosedDMsAreNotRetried(t *testing.T) {
	s := newFakeSender()
	s.sendErr = []error{restErr(http.StatusForbidden, discordgo.ErrCodeCannotSendMessagesToThisUser)}
	n := newNotifier(t, s)

	err := n.DirectEmbed(context.Background(), "u1", LimitsResetEmbed())
	assert.ErrorIs(t, err, ErrUnreachable)
	assert.Equal(t, 1, s.calls)
}

func TestServerErrorsAreRetried(t *testing.T) {
	s := newFakeSender()
	s.sendErr = []error{restErr(http.StatusBadGateway, 0), restErr(http.StatusTooManyRequests, 0)}
	n := newNotifier(t, s)

	require.NoError(t, n.ChannelEmbed(context.Background(), "text-1", AutoLeaveEmbed(5*time.Minute)))
	assert.Equal(t, 3, s.calls)
	assert.Len(t, s.sent["text-1"], 1)
}

func TestOpenDMFailureIsWrapped(t *testing.T) {
	s := newFakeSender()
	s.dmErr = restErr(http.StatusNotFound, 0)
	n := newNotifier(t, s)

	err := n.DirectEmbed(context.Background(), "ghost", PremiumExpiredEmbed())
	assert.ErrorIs(t, err, ErrUnreachable)
	assert.ErrorContains(t, err, "open dm with ghost")
}

func TestAutoLeave(t *testing.T) {
	s := newFakeSender()
	n := newNotifier(t, s)

	require.NoError(t, n.AutoLeave(context.Background(), "text-1", 5*time.Minute))
	require.Len(t, s.sent["text-1"], 1)
	assert.Contains(t, s.sent["text-1"][0].Description, "5m0s")
}

func TestPlainErrorsPassThrough(t *testing.T) {
	boom := errors.New("boom")
	assert.Same(t, boom, classify(boom))
}

func TestExpiringEmbedCarriesTimestamps(t *testing.T) {
	at := time.Unix(1780000000, 0)
	e := PremiumExpiringEmbed(at)
	assert.Contains(t, e.Description, "<t:1780000000:F>")
	assert.Contains(t, e.Description, "<t:1780000000:R>")
}
