package renewal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/chunkdrive/chunkdrive/internal/locator"
	"github.com/chunkdrive/chunkdrive/internal/pacer"
)

const defaultAPIBase = "https://discord.com/api/v9"
const apiURLTemplate = "%s/channels/%d/messages?%d&limit=3"

// launchInterval paces successive renewal launches at 1/45s, matching the
// rate the bot-token messages endpoint tolerates under bulk renewal.
const launchInterval = time.Second / 45

type messageResponse struct {
	ID          string `json:"id"`
	Attachments []struct {
		URL string `json:"url"`
	} `json:"attachments"`
}

type rateLimitBody struct {
	RetryAfter float64 `json:"retry_after"`
}

// APIPolicy renews locators with a stateless per-call GET against the
// channel messages endpoint, authenticated with a bot token.
type APIPolicy struct {
	token    string
	apiBase  string
	client   *http.Client
	pacer    *pacer.Pacer
	throttle *launchThrottle
}

// NewAPIPolicy builds an APIPolicy authenticating with the given bot token.
func NewAPIPolicy(token string) *APIPolicy {
	return newAPIPolicy(token, defaultAPIBase)
}

func newAPIPolicy(token, apiBase string) *APIPolicy {
	return &APIPolicy{
		token:    token,
		apiBase:  apiBase,
		client:   &http.Client{Timeout: 10 * time.Second},
		pacer:    pacer.New(),
		throttle: newLaunchThrottle(launchInterval),
	}
}

// Renew fans locs out across goroutines, launching one GET roughly every
// launchInterval so a large batch still respects the messages endpoint's
// rate limit even though the requests themselves run concurrently.
func (p *APIPolicy) Renew(ctx context.Context, locs []locator.Locator) ([]locator.Locator, error) {
	return renewBatch(ctx, locs, p.throttle, p.renewOne)
}

// renewOne fetches the current attachment URL for loc's (channel, message)
// pair and reparses it into a fresh Locator.
func (p *APIPolicy) renewOne(ctx context.Context, loc locator.Locator) (locator.Locator, error) {
	url := fmt.Sprintf(apiURLTemplate, p.apiBase, loc.ChannelID, loc.MessageID)

	var renewed locator.Locator
	err := p.pacer.Call(ctx, func() (bool, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return false, err
		}
		req.Header.Set("Authorization", "Bot "+p.token)

		resp, err := p.client.Do(req)
		if err != nil {
			return false, errors.Wrap(err, "renewal: fetch message")
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return false, errors.Wrap(err, "renewal: read response")
		}

		switch resp.StatusCode {
		case http.StatusOK:
			var msgs []messageResponse
			if err := json.Unmarshal(body, &msgs); err != nil {
				return false, errors.Wrap(err, "renewal: decode messages response")
			}
			if len(msgs) == 0 || len(msgs[0].Attachments) == 0 {
				return false, errors.New("renewal: no attachment in message response")
			}
			fresh, err := locator.Parse(msgs[0].Attachments[0].URL, loc.MessageID)
			if err != nil {
				return false, errors.Wrap(err, "renewal: parse renewed url")
			}
			renewed = fresh
			return false, nil
		case http.StatusTooManyRequests:
			var rl rateLimitBody
			if h := resp.Header.Get("Retry-After"); h != "" {
				secs, err := strconv.ParseFloat(h, 64)
				if err != nil {
					return false, errors.Wrap(err, "renewal: parse Retry-After header")
				}
				rl.RetryAfter = secs
			} else if err := json.Unmarshal(body, &rl); err != nil {
				return false, errors.Wrap(err, "renewal: decode rate limit body")
			}
			wait := time.Duration(rl.RetryAfter*float64(time.Second)) + 80*time.Millisecond
			return true, pacer.RetryAfter{Wait: wait}
		default:
			return false, fmt.Errorf("renewal: unexpected status %d", resp.StatusCode)
		}
	})
	if err != nil {
		return locator.Locator{}, err
	}
	return renewed, nil
}

// Close is a no-op: APIPolicy holds no long-lived resources.
func (p *APIPolicy) Close() error { return nil }
