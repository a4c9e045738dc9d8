package dispatcher

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
)

func TestSendSucceeds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"123","attachments":[{"url":"https://cdn.example.com/attachments/1/2/f.bin?ex=1&is=1&hm=aa"}]}`)
	}))
	defer srv.Close()

	d := New([]string{srv.URL})
	resp, err := d.Send(context.Background(), "f.bin", []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, "123", resp.ID)
	assert.Equal(t, "https://cdn.example.com/attachments/1/2/f.bin?ex=1&is=1&hm=aa", resp.Attachments[0].URL)
}

func TestSendRetriesOn429(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if n == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"retry_after":0.25}`)
			return
		}
		fmt.Fprint(w, `{"id":"1","attachments":[{"url":"https://cdn.example.com/attachments/1/2/f.bin?ex=1&is=1&hm=aa"}]}`)
	}))
	defer srv.Close()

	d := New([]string{srv.URL})
	start := time.Now()
	_, err := d.Send(context.Background(), "f.bin", []byte("x"))
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())
	assert.GreaterOrEqual(t, elapsed, 280*time.Millisecond)
}

func TestSendRoundRobinsEndpoints(t *testing.T) {
	var hits [2]atomic.Int32
	makeHandler := func(idx int) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			hits[idx].Add(1)
			fmt.Fprint(w, `{"id":"1","attachments":[{"url":"https://cdn.example.com/attachments/1/2/f.bin?ex=1&is=1&hm=aa"}]}`)
		}
	}
	srv0 := httptest.NewServer(makeHandler(0))
	defer srv0.Close()
	srv1 := httptest.NewServer(makeHandler(1))
	defer srv1.Close()

	d := New([]string{srv0.URL, srv1.URL})
	for i := 0; i < 4; i++ {
		_, err := d.Send(context.Background(), "f.bin", []byte("x"))
		require.NoError(t, err)
	}
	assert.EqualValues(t, 2, hits[0].Load())
	assert.EqualValues(t, 2, hits[1].Load())
}

func TestSendSurfacesUploadError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, "boom")
	}))
	defer srv.Close()

	d := New([]string{srv.URL})
	_, err := d.Send(context.Background(), "f.bin", []byte("x"))
	require.Error(t, err)
	var uploadErr *UploadError
	assert.ErrorAs(t, err, &uploadErr)
}

func TestGetRetriesOnEmptyBody(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if n == 1 {
			// empty 200 body
			return
		}
		fmt.Fprint(w, "chunk-body")
	}))
	defer srv.Close()

	d := New([]string{srv.URL})
	body, err := d.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "chunk-body", string(body))
	assert.EqualValues(t, 2, calls.Load())
}

func TestGetRetriesOn429(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if n == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"retry_after":0.05}`)
			return
		}
		fmt.Fprint(w, "ok-body")
	}))
	defer srv.Close()

	d := New([]string{srv.URL})
	body, err := d.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "ok-body", string(body))
}
