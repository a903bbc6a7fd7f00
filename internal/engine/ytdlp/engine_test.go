package ytdlp

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-media-ingest/internal/ingest"
)

type fakeRunner struct {
	stdout, stderr []byte
	err            error
	name           string
	args           []string
	deadline       time.Time
	block          bool
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.name = name
	f.args = args
	f.deadline, _ = ctx.Deadline()
	if f.block {
		<-ctx.Done()
		return nil, nil, ctx.Err()
	}
	return f.stdout, f.stderr, f.err
}

func TestArgsMapsStrategy(t *testing.T) {
	t.Parallel()

	s := ingest.Strategy{
		Name:            "primary",
		Format:          "bestaudio/best",
		SocketTimeout:   30 * time.Second,
		Retries:         5,
		FragmentRetries: 3,
		WriteSubtitles:  true,
		WriteAutoSubs:   true,
		SubtitleLangs:   []string{"en", "es"},
		Headers:         map[string]string{"User-Agent": "UA", "Accept": "*/*"},
		ExtractorArgs:   []string{"youtube:skip=hls,dash"},
	}
	require.Equal(t, []string{
		"--dump-single-json", "--skip-download", "--no-warnings", "--quiet", "--no-playlist",
		"-f", "bestaudio/best",
		"--socket-timeout", "30",
		"--retries", "5",
		"--fragment-retries", "3",
		"--write-subs", "--write-auto-subs",
		"--sub-langs", "en,es",
		"--add-header", "Accept:*/*",
		"--add-header", "User-Agent:UA",
		"--extractor-args", "youtube:skip=hls,dash",
		"--", "https://youtu.be/abc",
	}, Args("https://youtu.be/abc", s))

	require.Equal(t, []string{
		"--dump-single-json", "--skip-download", "--no-warnings", "--quiet", "--no-playlist",
		"--", "-not-a-flag",
	}, Args("-not-a-flag", ingest.Strategy{Name: "bare"}))
}

func TestExtractDecodesOutput(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{stdout: []byte(`{
		"id": "abc", "title": "Song", "duration": 212.5, "view_count": 42,
		"formats": [{"format_id": "18", "url": "https://v/18", "ext": "mp4", "vcodec": "avc1", "acodec": "mp4a", "width": 640}],
		"subtitles": {"en": [{"url": "https://s/en.vtt", "ext": "vtt"}]}
	}`)}
	e := New(Config{Binary: "/usr/local/bin/yt-dlp", AttemptTimeout: time.Minute}, runner, nil)

	raw, err := e.Extract(context.Background(), "https://youtu.be/abc", ingest.Strategy{Name: "minimal", Format: "worst"})
	require.NoError(t, err)
	require.Equal(t, "abc", raw.ID)
	require.InDelta(t, 212.5, raw.Duration, 0.001)
	require.EqualValues(t, 42, raw.ViewCount)
	require.Len(t, raw.Formats, 1)
	require.Equal(t, 640, *raw.Formats[0].Width)
	require.Nil(t, raw.Formats[0].Height)
	require.Equal(t, "vtt", raw.Subtitles["en"][0].Ext)

	require.Equal(t, "/usr/local/bin/yt-dlp", runner.name)
	require.Contains(t, runner.args, "worst")
	require.False(t, runner.deadline.IsZero())
}

func TestExtractSurfacesStderr(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{
		err:    errors.New("exit status 1"),
		stderr: []byte("WARNING: something\nERROR: [youtube] abc: Sign in to confirm you're not a bot\n\n"),
	}
	_, err := New(Config{}, runner, nil).Extract(context.Background(), "https://youtu.be/abc", ingest.Strategy{Name: "primary"})
	require.ErrorContains(t, err, "yt-dlp primary: exit status 1: ERROR: [youtube] abc: Sign in to confirm you're not a bot")
	require.Equal(t, "yt-dlp", runner.name)
}

func TestExtractTimesOut(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{block: true}
	e := New(Config{AttemptTimeout: 20 * time.Millisecond}, runner, nil)
	_, err := e.Extract(context.Background(), "https://youtu.be/abc", ingest.Strategy{Name: "slow"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExtractRejectsBadJSON(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, &fakeRunner{stdout: []byte("not json")}, nil).
		Extract(context.Background(), "https://youtu.be/abc", ingest.Strategy{Name: "x"})
	require.ErrorContains(t, err, "decode yt-dlp output")
}

func TestUpdate(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{stdout: []byte("yt-dlp is up to date (2025.01.01)\n")}
	out, err := New(Config{}, runner, nil).Update(context.Background())
	require.NoError(t, err)
	require.Equal(t, "yt-dlp is up to date (2025.01.01)", out)
	require.Equal(t, []string{"-U"}, runner.args)

	_, err = New(Config{}, &fakeRunner{err: errors.New("exit status 2")}, nil).Update(context.Background())
	require.ErrorContains(t, err, "update yt-dlp: exit status 2: no error output")
}

func TestMissingBinaryReportsNotInstalled(t *testing.T) {
	t.Parallel()

	e := New(Config{Binary: "definitely-not-a-real-binary-xyz"}, nil, nil)
	_, err := e.Extract(context.Background(), "https://youtu.be/abc", ingest.Strategy{Name: "primary"})
	require.ErrorIs(t, err, ingest.ErrEngineNotInstalled)
	require.ErrorContains(t, err, "definitely-not-a-real-binary-xyz")

	_, err = e.Update(context.Background())
	require.ErrorIs(t, err, ingest.ErrEngineNotInstalled)

	require.False(t, isNotInstalled(errors.New("other")))
	require.True(t, isNotInstalled(&exec.Error{Name: "x", Err: exec.ErrNotFound}))
}
