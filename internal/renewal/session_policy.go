package renewal

import (
	"context"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/pkg/errors"

	"github.com/chunkdrive/chunkdrive/internal/locator"
)

// SessionPolicy renews locators over one long-lived discordgo session.
// discordgo's REST methods (unlike its gateway connection) are safe for
// concurrent use, so a batch is fanned out across goroutines under the
// same launch pacing APIPolicy uses rather than serialized through a
// single owning goroutine.
type SessionPolicy struct {
	session  *discordgo.Session
	throttle *launchThrottle
	shutdown sync.Once
}

// NewSessionPolicy opens a bot session authenticated with token.
func NewSessionPolicy(token string) (*SessionPolicy, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, errors.Wrap(err, "renewal: create session")
	}
	if err := session.Open(); err != nil {
		return nil, errors.Wrap(err, "renewal: open session")
	}

	return &SessionPolicy{
		session:  session,
		throttle: newLaunchThrottle(launchInterval),
	}, nil
}

func (p *SessionPolicy) fetch(_ context.Context, loc locator.Locator) (locator.Locator, error) {
	channelID := fmt.Sprintf("%d", loc.ChannelID)
	messageID := fmt.Sprintf("%d", loc.MessageID)

	msg, err := p.session.ChannelMessage(channelID, messageID)
	if err != nil {
		return locator.Locator{}, errors.Wrap(err, "renewal: fetch message")
	}
	if len(msg.Attachments) == 0 {
		return locator.Locator{}, errors.New("renewal: message has no attachments")
	}

	fresh, err := locator.Parse(msg.Attachments[0].URL, loc.MessageID)
	if err != nil {
		return locator.Locator{}, errors.Wrap(err, "renewal: parse renewed url")
	}
	return fresh, nil
}

// Renew fans locs out across goroutines over the shared session, launching
// one lookup roughly every launchInterval.
func (p *SessionPolicy) Renew(ctx context.Context, locs []locator.Locator) ([]locator.Locator, error) {
	return renewBatch(ctx, locs, p.throttle, p.fetch)
}

// Close closes the underlying session. Safe to call more than once.
func (p *SessionPolicy) Close() error {
	var err error
	p.shutdown.Do(func() {
		err = p.session.Close()
	})
	return err
}
