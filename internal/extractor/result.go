package extractor

import "github.com/JakeFAU/realtime-media-ingest/internal/ingest"

// BuildResult assembles the public result from engine output. Video formats come
// first, then audio-only formats, each in engine order; formats with neither codec
// are dropped.
func BuildResult(raw ingest.RawInfo) ingest.ExtractionResult {
	var video, audio []ingest.Format
	for _, f := range raw.Formats {
		switch {
		case hasCodec(f.VCodec):
			video = append(video, ingest.Format{
				FormatID:   f.FormatID,
				URL:        f.URL,
				Container:  f.Ext,
				VideoCodec: f.VCodec,
				AudioCodec: codecOrEmpty(f.ACodec),
				Width:      f.Width,
				Height:     f.Height,
				Filesize:   f.Filesize,
			})
		case hasCodec(f.ACodec):
			audio = append(audio, ingest.Format{
				FormatID:   f.FormatID,
				URL:        f.URL,
				Container:  f.Ext,
				AudioCodec: f.ACodec,
				Filesize:   f.Filesize,
			})
		}
	}

	formats := make([]ingest.Format, 0, len(video)+len(audio))
	formats = append(formats, video...)
	formats = append(formats, audio...)

	mediaURL := raw.URL
	switch {
	case len(video) > 0:
		mediaURL = video[0].URL
	case len(audio) > 0:
		mediaURL = audio[0].URL
	}

	return ingest.ExtractionResult{
		VideoID:           raw.ID,
		Title:             raw.Title,
		Description:       raw.Description,
		Duration:          raw.Duration,
		Uploader:          raw.Uploader,
		UploadDate:        raw.UploadDate,
		ViewCount:         raw.ViewCount,
		ThumbnailURL:      raw.Thumbnail,
		MediaURL:          mediaURL,
		Formats:           formats,
		Subtitles:         raw.Subtitles,
		AutomaticCaptions: raw.AutomaticCaptions,
	}
}

func hasCodec(c string) bool {
	return c != "" && c != "none"
}

func codecOrEmpty(c string) string {
	if hasCodec(c) {
		return c
	}
	return ""
}
