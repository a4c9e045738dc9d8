package renewal

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chunkdrive/chunkdrive/internal/locator"
)

const sampleCDNURL = "https://cdn.example.com/attachments/10/20/chunk-0?ex=7fffffff&is=1&hm=aabbcc"

func staleLocator(t *testing.T) locator.Locator {
	t.Helper()
	loc, err := locator.Parse(sampleCDNURL, 99)
	require.NoError(t, err)
	return loc
}

func TestAPIPolicyRenewSucceeds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bot sekret", r.Header.Get("Authorization"))
		fmt.Fprintf(w, `[{"id":"99","attachments":[{"url":%q}]}]`, sampleCDNURL)
	}))
	defer srv.Close()

	p := newAPIPolicy("sekret", srv.URL)
	renewed, err := p.Renew(context.Background(), []locator.Locator{staleLocator(t)})
	require.NoError(t, err)
	require.Len(t, renewed, 1)
	assert.Equal(t, uint64(10), renewed[0].ChannelID)
	assert.Equal(t, uint64(99), renewed[0].MessageID)
}

func TestAPIPolicyRenewRetriesOn429(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"retry_after":0.05}`)
			return
		}
		fmt.Fprintf(w, `[{"id":"99","attachments":[{"url":%q}]}]`, sampleCDNURL)
	}))
	defer srv.Close()

	p := newAPIPolicy("sekret", srv.URL)
	_, err := p.Renew(context.Background(), []locator.Locator{staleLocator(t)})
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())
}

func TestAPIPolicyThrottlesLaunches(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `[{"id":"99","attachments":[{"url":%q}]}]`, sampleCDNURL)
	}))
	defer srv.Close()

	p := newAPIPolicy("sekret", srv.URL)
	loc := staleLocator(t)

	start := time.Now()
	_, err := p.Renew(context.Background(), []locator.Locator{loc})
	require.NoError(t, err)
	_, err = p.Renew(context.Background(), []locator.Locator{loc})
	require.NoError(t, err)
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, launchInterval)
}

func TestAPIPolicyRenewFailsOnMissingAttachment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"id":"99","attachments":[]}]`)
	}))
	defer srv.Close()

	p := newAPIPolicy("sekret", srv.URL)
	_, err := p.Renew(context.Background(), []locator.Locator{staleLocator(t)})
	require.Error(t, err)
}

func TestAPIPolicyCloseIsNoop(t *testing.T) {
	p := NewAPIPolicy("sekret")
	assert.NoError(t, p.Close())
}
