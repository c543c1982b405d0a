package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/schollz/progressbar/v3"
	assert_ "github.com/stretchr/testify/assert"
	require_ "github.com/stretchr/testify/require"

	"github.com/alanbriolat/universal-saver/internal/fetch"
	"github.com/alanbriolat/universal-saver/internal/materialize"
	"github.com/alanbriolat/universal-saver/internal/pubsub"
	"github.com/alanbriolat/universal-saver/internal/session"
)

func quietRenderer(out io.Writer) *renderer {
	r := newRenderer(out)
	r.newBar = func(max int64) *progressbar.ProgressBar {
		return progressbar.NewOptions64(max, progressbar.OptionSetWriter(io.Discard))
	}
	return r
}

func TestRenderer(t *testing.T) {
	assert := assert_.New(t)
	var out bytes.Buffer
	r := quietRenderer(&out)
	ch := pubsub.NewChannel[session.Event](10)
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.run(ch)
	}()

	idle := session.Snapshot{State: session.StateIdle, Input: " https://x.com/a/status/1 "}
	validating := idle
	validating.AttemptID = "a1"
	validating.State = session.StateValidating
	requesting := validating
	requesting.State = session.StateRequesting
	receiving := requesting
	receiving.State = session.StateReceiving
	succeeded := receiving
	succeeded.State = session.StateSucceeded
	succeeded.Input = ""
	succeeded.Message = session.UserMessage{Kind: session.MessageSuccess, Text: session.MessageSucceeded}
	succeeded.SavedPath = "downloads/clip.mp4"

	ch.Send(session.StateChanged{Old: idle, New: validating})
	ch.Send(session.StateChanged{Old: validating, New: requesting})
	ch.Send(session.StateChanged{Old: requesting, New: receiving})
	ch.Send(session.Progress{AttemptID: "a1", Downloaded: 0, Expected: 100})
	ch.Send(session.Progress{AttemptID: "a1", Downloaded: 100, Expected: 100})
	ch.Send(session.StateChanged{Old: receiving, New: succeeded})
	r.waitSettled("a1")
	ch.Close()
	<-done

	assert.Equal(
		"Checking https://x.com/a/status/1\n"+
			"Requesting download...\n"+
			session.MessageSucceeded+"\n"+
			"  downloads/clip.mp4\n",
		out.String(),
	)
}

func TestRenderer_ProgressBarOutput(t *testing.T) {
	assert := assert_.New(t)
	var out bytes.Buffer
	r := newRenderer(&out)
	ch := pubsub.NewChannel[session.Event](10)
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.run(ch)
	}()

	requesting := session.Snapshot{AttemptID: "a1", State: session.StateRequesting}
	receiving := requesting
	receiving.State = session.StateReceiving
	failed := receiving
	failed.State = session.StateFailed
	failed.Message = session.UserMessage{Kind: session.MessageError, Text: session.MessageConnectionFailed}

	ch.Send(session.StateChanged{Old: requesting, New: receiving})
	ch.Send(session.Progress{AttemptID: "a1", Downloaded: 50, Expected: 100})
	ch.Send(session.StateChanged{Old: receiving, New: failed})
	r.waitSettled("a1")
	ch.Close()
	<-done

	// The bar is drawn on the renderer's writer, not the process's stderr
	assert.Contains(out.String(), "receiving")
	assert.True(strings.HasSuffix(out.String(), "Error: "+session.MessageConnectionFailed+"\n"))
}

func TestDriver_Interactive(t *testing.T) {
	assert := assert_.New(t)
	require := require_.New(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Query().Get("url"), "private") {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"detail":"This post is private"}`))
			return
		}
		w.Header().Set("Content-Type", "video/mp4")
		w.Header().Set("Content-Disposition", `attachment; filename*=UTF-8''clip.mp4`)
		_, _ = w.Write([]byte("not really a video"))
	}))
	defer server.Close()
	client, err := fetch.NewClient(server.URL)
	require.Nil(err)

	dir := t.TempDir()
	config := session.DefaultConfig
	config.Requester = client
	config.Materializer = materialize.New(materialize.WithTargetDir(dir))
	ses, err := session.New(config, context.Background())
	require.Nil(err)
	events, err := ses.Subscribe()
	require.Nil(err)

	var out bytes.Buffer
	r := quietRenderer(&out)
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.run(events)
	}()

	d := &driver{ctx: context.Background(), session: ses, renderer: r}
	d.interactive(strings.NewReader("https://x.com/a/status/1\nhttps://x.com/private/status/2\n\nquit\nhttps://x.com/a/status/3\n"))
	ses.Close()
	<-done

	assert.FileExists(dir + "/clip.mp4")
	assert.NoFileExists(dir + "/clip (1).mp4", "input after quit should be ignored")
	if assert.NotNil(d.failures) {
		assert.Len(d.failures.Errors, 2)
	}
	text := out.String()
	assert.Contains(text, session.MessageSucceeded)
	assert.Contains(text, "Error: This post is private\n")
	assert.Contains(text, "Error: "+session.MessageEmptyInput+"\n")
}
