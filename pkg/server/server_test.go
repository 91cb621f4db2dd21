package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/capturedriver/pkg/adapters/logger"
	"github.com/user/capturedriver/pkg/behavior"
	"github.com/user/capturedriver/pkg/capture"
	"github.com/user/capturedriver/pkg/channel"
	"github.com/user/capturedriver/pkg/oembed"
)

func noRedirect(req *http.Request, via []*http.Request) error {
	return http.ErrUseLastResponse
}

// newEmbedServer starts the server with one rule served by a fake provider.
func newEmbedServer(t *testing.T, providerBody string) (*httptest.Server, *capture.Registry) {
	t.Helper()
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, providerBody)
	}))
	t.Cleanup(provider.Close)

	rules, err := behavior.ParseRules([]byte(`rules:
  - name: youtube
    match: '^https://www\.youtube\.com/watch'
    oe: ` + provider.URL + `/oembed
    params:
      format: json
`))
	require.NoError(t, err)

	jobs := capture.NewRegistry(0)
	srv := New(Options{
		Jobs:   jobs,
		Embeds: oembed.New(rules, "http://embedserver", logger.NewNoop()),
		Channel: channel.NewHandler(channel.RunnerFunc(func(ctx context.Context, job *capture.Job) error {
			job.Finish("Done!")
			return nil
		}), logger.NewNoop()),
		Logger: logger.NewNoop(),
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, jobs
}

func samplePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestServer_Health(t *testing.T) {
	ts, _ := newEmbedServer(t, `{}`)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_Status(t *testing.T) {
	ts, jobs := newEmbedServer(t, `{}`)

	resp, err := http.Get(ts.URL + "/status")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	job := capture.NewJobWithID("job-1", "https://example.com")
	job.SetStatus("Running Behavior...")
	job.SetSizes(10, 5)
	jobs.Add(job)

	resp, err = http.Get(ts.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "Running Behavior...", body["status"])
	assert.Equal(t, false, body["done"])
	assert.EqualValues(t, 15, body["size"])
}

func TestServer_Screenshot(t *testing.T) {
	ts, jobs := newEmbedServer(t, `{}`)
	job := capture.NewJob("https://example.com")
	jobs.Add(job)

	resp, err := http.Get(ts.URL + "/screenshot")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	job.SetScreenshot(samplePNG(t, 640, 200))

	resp, err = http.Get(ts.URL + "/screenshot?thumb=1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	img, err := png.Decode(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, DefaultThumbWidth, img.Bounds().Dx())
	assert.Equal(t, 100, img.Bounds().Dy())
}

func TestServer_InfoRedirect(t *testing.T) {
	ts, _ := newEmbedServer(t, `{}`)
	client := &http.Client{CheckRedirect: noRedirect}

	resp, err := client.Get(ts.URL + "/info/https://www.youtube.com/watch?v=abc")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)

	loc := resp.Header.Get("Location")
	assert.Contains(t, loc, "/oembed?")
	assert.Contains(t, loc, "format=json")
	assert.Contains(t, loc, "url=https%3A%2F%2Fwww.youtube.com%2Fwatch%3Fv%3Dabc")

	resp, err = client.Get(ts.URL + "/info/https://example.com/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_EmbedWrapper(t *testing.T) {
	ts, _ := newEmbedServer(t, `{"html": "<iframe src=\"https://www.youtube.com/embed/abc\"></iframe>", "width": 480, "height": 270}`)

	resp, err := http.Get(ts.URL + "/e/https://www.youtube.com/watch?v=abc")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	assert.True(t, strings.HasPrefix(string(body), `<div id="embedArchiveDiv" style="width: 480px;height: 270px;">`))
	assert.Contains(t, string(body), `<iframe src="https://www.youtube.com/embed/abc"></iframe>`)
}

func TestServer_EmbedWithoutMarkup(t *testing.T) {
	ts, _ := newEmbedServer(t, `{"type": "video"}`)

	resp, err := http.Get(ts.URL + "/e/https://www.youtube.com/watch?v=abc")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_Jobs(t *testing.T) {
	ts, jobs := newEmbedServer(t, `{}`)
	jobs.Add(capture.NewJobWithID("job-7", "https://example.com"))

	resp, err := http.Get(ts.URL + "/jobs/job-7")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap capture.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, "job-7", snap.ID)

	resp2, err := http.Get(ts.URL + "/jobs/unknown")
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)

	resp3, err := http.Get(ts.URL + "/jobs")
	require.NoError(t, err)
	defer resp3.Body.Close()
	var list []capture.Snapshot
	require.NoError(t, json.NewDecoder(resp3.Body).Decode(&list))
	assert.Len(t, list, 1)
}

func TestServer_CaptureChannel(t *testing.T) {
	ts, _ := newEmbedServer(t, `{}`)
	endpoint := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/capture"

	client, err := channel.Dial(context.Background(), endpoint, "https://example.com/", channel.DialOptions{})
	require.NoError(t, err)
	defer client.Close()

	final, err := client.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, final.Done)
}

func TestThumbnail_KeepsSmallImages(t *testing.T) {
	data := samplePNG(t, 100, 50)
	out, err := Thumbnail(data, DefaultThumbWidth)
	require.NoError(t, err)
	assert.Equal(t, data, out)

	_, err = Thumbnail([]byte("not a png"), 100)
	assert.Error(t, err)
}
