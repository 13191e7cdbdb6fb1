package headless

import (
	"fmt"
	"strings"

	"github.com/Eyevinn/hls-m3u8/m3u8"

	"github.com/pithecene-io/cinebridge/engine"
)

// Summarize parses an HLS playlist and describes it.
func Summarize(content string) (*engine.ManifestSummary, error) {
	playlist, listType, err := m3u8.DecodeFrom(strings.NewReader(content), true)
	if err != nil {
		return nil, fmt.Errorf("parse playlist: %w", err)
	}

	switch listType {
	case m3u8.MASTER:
		master, ok := playlist.(*m3u8.MasterPlaylist)
		if !ok {
			return nil, fmt.Errorf("parse playlist: unexpected master type %T", playlist)
		}
		summary := &engine.ManifestSummary{
			Kind:    "master",
			Version: master.Version(),
			Closed:  true,
		}
		for _, v := range master.Variants {
			if v == nil {
				continue
			}
			summary.Variants = append(summary.Variants, engine.Variant{
				URI:        v.URI,
				Bandwidth:  uint64(v.Bandwidth),
				Resolution: v.Resolution,
				Codecs:     v.Codecs,
			})
		}
		return summary, nil

	case m3u8.MEDIA:
		media, ok := playlist.(*m3u8.MediaPlaylist)
		if !ok {
			return nil, fmt.Errorf("parse playlist: unexpected media type %T", playlist)
		}
		summary := &engine.ManifestSummary{
			Kind:    "media",
			Version: media.Version(),
			Closed:  media.Closed,
		}
		for _, seg := range media.Segments {
			if seg == nil {
				continue
			}
			summary.Segments++
			summary.TotalDuration += seg.Duration
			if seg.Duration > summary.TargetDuration {
				summary.TargetDuration = seg.Duration
			}
		}
		return summary, nil

	default:
		return nil, fmt.Errorf("parse playlist: unknown playlist type %v", listType)
	}
}
