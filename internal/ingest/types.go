package ingest

import (
	"time"
)

// JobStatus represents the lifecycle state of an extraction job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Progress checkpoints written by the orchestrator on the success path.
const (
	ProgressQueued    = 0
	ProgressStarted   = 10
	ProgressExtract   = 30
	ProgressAssembled = 70
	ProgressDone      = 100
)

// Terminal reports whether no further transition may leave the status.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job is the record persisted for each submitted URL.
type Job struct {
	ID          string            `json:"job_id"`
	SourceURL   string            `json:"url"`
	Status      JobStatus         `json:"status"`
	Progress    int               `json:"progress"`
	CreatedAt   time.Time         `json:"created_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	Error       string            `json:"error,omitempty"`
	Result      *ExtractionResult `json:"result,omitempty"`
}

// ExtractionResult describes a resolved media source.
type ExtractionResult struct {
	VideoID           string                     `json:"video_id"`
	Title             string                     `json:"title"`
	Description       string                     `json:"description"`
	Duration          float64                    `json:"duration"`
	Uploader          string                     `json:"uploader"`
	UploadDate        string                     `json:"upload_date"`
	ViewCount         int64                      `json:"view_count"`
	ThumbnailURL      string                     `json:"thumbnail_url"`
	MediaURL          string                     `json:"media_url,omitempty"`
	Formats           []Format                   `json:"formats"`
	Subtitles         map[string][]SubtitleTrack `json:"subtitles"`
	AutomaticCaptions map[string][]SubtitleTrack `json:"automatic_captions"`
}

// Format is one playable stream descriptor.
type Format struct {
	FormatID   string `json:"format_id"`
	URL        string `json:"url"`
	Container  string `json:"container"`
	VideoCodec string `json:"video_codec,omitempty"`
	AudioCodec string `json:"audio_codec,omitempty"`
	Width      *int   `json:"width,omitempty"`
	Height     *int   `json:"height,omitempty"`
	Filesize   *int64 `json:"filesize,omitempty"`
}

// SubtitleTrack is one downloadable subtitle rendition.
type SubtitleTrack struct {
	URL  string `json:"url"`
	Ext  string `json:"ext"`
	Name string `json:"name,omitempty"`
}

// RawInfo is the structured metadata returned by an extraction engine. Field names
// follow the yt-dlp info dictionary.
type RawInfo struct {
	ID                string                     `json:"id"`
	Title             string                     `json:"title"`
	Description       string                     `json:"description"`
	Duration          float64                    `json:"duration"`
	Uploader          string                     `json:"uploader"`
	UploadDate        string                     `json:"upload_date"`
	ViewCount         int64                      `json:"view_count"`
	Thumbnail         string                     `json:"thumbnail"`
	URL               string                     `json:"url"`
	Formats           []RawFormat                `json:"formats"`
	Subtitles         map[string][]SubtitleTrack `json:"subtitles"`
	AutomaticCaptions map[string][]SubtitleTrack `json:"automatic_captions"`
}

// RawFormat is a stream descriptor as reported by the engine.
type RawFormat struct {
	FormatID string `json:"format_id"`
	URL      string `json:"url"`
	Ext      string `json:"ext"`
	VCodec   string `json:"vcodec"`
	ACodec   string `json:"acodec"`
	Width    *int   `json:"width"`
	Height   *int   `json:"height"`
	Filesize *int64 `json:"filesize"`
}

// Strategy is one request shape tried against the extraction engine.
type Strategy struct {
	Name            string            `mapstructure:"name" json:"name"`
	Engine          string            `mapstructure:"engine" json:"engine,omitempty"`
	Format          string            `mapstructure:"format" json:"format,omitempty"`
	SocketTimeout   time.Duration     `mapstructure:"socket_timeout" json:"socket_timeout,omitempty"`
	Retries         int               `mapstructure:"retries" json:"retries,omitempty"`
	FragmentRetries int               `mapstructure:"fragment_retries" json:"fragment_retries,omitempty"`
	WriteSubtitles  bool              `mapstructure:"write_subtitles" json:"write_subtitles,omitempty"`
	WriteAutoSubs   bool              `mapstructure:"write_auto_subs" json:"write_auto_subs,omitempty"`
	SubtitleLangs   []string          `mapstructure:"subtitle_langs" json:"subtitle_langs,omitempty"`
	Headers         map[string]string `mapstructure:"headers" json:"headers,omitempty"`
	ExtractorArgs   []string          `mapstructure:"extractor_args" json:"extractor_args,omitempty"`
	// LastResort strategies run after the regular chain for every URL, protected or not.
	LastResort bool `mapstructure:"last_resort" json:"last_resort,omitempty"`
}

// QueueItem wraps a job ready to run.
type QueueItem struct {
	JobID     string `json:"job_id"`
	SourceURL string `json:"url"`
	Submitted int64  `json:"submitted"`
}

// ArchiveRecord is the row written for each completed extraction.
type ArchiveRecord struct {
	JobID       string
	SourceURL   string
	Fingerprint string
	VideoID     string
	Title       string
	MediaURL    string
	CacheHit    bool
	CreatedAt   time.Time
	CompletedAt time.Time
	Result      ExtractionResult
}

// CompletionEvent is published when a job reaches a terminal state.
type CompletionEvent struct {
	JobID       string    `json:"job_id"`
	SourceURL   string    `json:"url"`
	Status      JobStatus `json:"status"`
	MediaURL    string    `json:"media_url,omitempty"`
	Error       string    `json:"error,omitempty"`
	CacheHit    bool      `json:"cache_hit"`
	CompletedAt time.Time `json:"completed_at"`
}

// PubSubAttributes exposes routing attributes so subscribers can filter without
// decoding the body.
func (e CompletionEvent) PubSubAttributes() map[string]string {
	return map[string]string{
		"job_id": e.JobID,
		"status": string(e.Status),
	}
}
