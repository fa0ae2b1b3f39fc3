package httpclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoInjectsUserAgent(t *testing.T) {
	t.Parallel()

	var gotUA atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA.Store(r.Header.Get("User-Agent"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(&Config{UserAgent: "campusync-test"})
	defer c.Close()

	resp, err := c.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	assert.Equal(t, "campusync-test", gotUA.Load())
}

func TestDoAppliesDefaultTimeout(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(5 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	c := New(&Config{DefaultTimeout: 50 * time.Millisecond})
	defer c.Close()

	_, err := c.Get(context.Background(), srv.URL) //nolint:bodyclose // request must fail
	assert.Error(t, err)
}

func TestDoDefaultTimeoutOutlivesBodyRead(t *testing.T) {
	t.Parallel()

	// The server streams the body in two chunks so that the second chunk is
	// still in flight when Do has already returned to the caller.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fl, ok := w.(http.Flusher)
		require.True(t, ok, "httptest recorder must support flushing")
		_, _ = io.WriteString(w, `[{"id":1,`)
		fl.Flush()
		time.Sleep(100 * time.Millisecond)
		_, _ = io.WriteString(w, `"content":"hi"}]`)
	}))
	defer srv.Close()

	c := New(&Config{DefaultTimeout: 5 * time.Second})
	defer c.Close()

	resp, err := c.PostForm(context.Background(), srv.URL, "wsfunction=core_notes_get_course_notes")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err, "body read must stay within the request deadline")
	assert.Equal(t, `[{"id":1,"content":"hi"}]`, string(body))
}

func TestDoDefaultTimeoutBoundsSlowBodyRead(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fl, ok := w.(http.Flusher)
		require.True(t, ok, "httptest recorder must support flushing")
		_, _ = io.WriteString(w, "partial")
		fl.Flush()
		select {
		case <-time.After(5 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	c := New(&Config{DefaultTimeout: 50 * time.Millisecond})
	defer c.Close()

	resp, err := c.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	_, err = io.ReadAll(resp.Body)
	assert.Error(t, err, "the default timeout must still cap the body read")
}

func TestDoNilRequestRejected(t *testing.T) {
	t.Parallel()

	c := New(nil)
	defer c.Close()

	_, err := c.Do(context.Background(), nil) //nolint:bodyclose // request must fail
	assert.Error(t, err)
}

func TestHooksObserveRequests(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	c := New(nil)
	defer c.Close()

	var before, after atomic.Int32
	c.SetBeforeRequestHook(func(*http.Request) { before.Add(1) })
	var gotStatus atomic.Int32
	c.SetAfterResponseHook(func(_ *http.Request, resp *http.Response, err error) {
		after.Add(1)
		if resp != nil {
			gotStatus.Store(int32(resp.StatusCode))
		}
	})

	resp, err := c.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	assert.Equal(t, int32(1), before.Load())
	assert.Equal(t, int32(1), after.Load())
	assert.Equal(t, int32(http.StatusTeapot), gotStatus.Load())
}

func TestPostFormSetsContentType(t *testing.T) {
	t.Parallel()

	var gotCT atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCT.Store(r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(nil)
	defer c.Close()

	resp, err := c.PostForm(context.Background(), srv.URL, "a=1&b=2")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	assert.Equal(t, "application/x-www-form-urlencoded", gotCT.Load())
}
