package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/grafov/m3u8"
)

// hlsFetcher downloads an HLS playlist and its segments into a single file.
// It exists as the last-resort strategy for sources that expose a raw
// playlist the external downloader cannot negotiate.
type hlsFetcher struct {
	httpClient *http.Client
}

func newHLSFetcher(httpClient *http.Client) *hlsFetcher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	return &hlsFetcher{httpClient: httpClient}
}

// Fetch resolves the playlist at reference (following one level of master
// playlist indirection) and concatenates its segments into dest.
func (f *hlsFetcher) Fetch(ctx context.Context, reference, dest string) error {
	mediaURL, media, err := f.resolveMediaPlaylist(ctx, reference)
	if err != nil {
		return err
	}

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("hls: creating output: %w", err)
	}
	defer out.Close()

	wrote := false
	for _, segment := range media.Segments {
		if segment == nil {
			continue
		}
		segmentURL, err := resolveURL(mediaURL, segment.URI)
		if err != nil {
			return fmt.Errorf("hls: segment %s: %w", segment.URI, err)
		}
		if err := f.copySegment(ctx, segmentURL, out); err != nil {
			return err
		}
		wrote = true
	}
	if !wrote {
		return fmt.Errorf("hls: playlist %s has no segments", reference)
	}
	return nil
}

func (f *hlsFetcher) resolveMediaPlaylist(ctx context.Context, reference string) (string, *m3u8.MediaPlaylist, error) {
	playlist, kind, err := f.fetchPlaylist(ctx, reference)
	if err != nil {
		return "", nil, err
	}

	if kind == m3u8.MASTER {
		master := playlist.(*m3u8.MasterPlaylist)
		variant := pickVariant(master)
		if variant == nil {
			return "", nil, fmt.Errorf("hls: master playlist %s has no variants", reference)
		}
		variantURL, err := resolveURL(reference, variant.URI)
		if err != nil {
			return "", nil, fmt.Errorf("hls: variant %s: %w", variant.URI, err)
		}
		playlist, kind, err = f.fetchPlaylist(ctx, variantURL)
		if err != nil {
			return "", nil, err
		}
		if kind != m3u8.MEDIA {
			return "", nil, fmt.Errorf("hls: variant %s is not a media playlist", variantURL)
		}
		return variantURL, playlist.(*m3u8.MediaPlaylist), nil
	}

	return reference, playlist.(*m3u8.MediaPlaylist), nil
}

func (f *hlsFetcher) fetchPlaylist(ctx context.Context, playlistURL string) (m3u8.Playlist, m3u8.ListType, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, playlistURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("hls: building request: %w", err)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("hls: fetching playlist: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("hls: playlist %s: status %d", playlistURL, resp.StatusCode)
	}

	playlist, kind, err := m3u8.DecodeFrom(resp.Body, true)
	if err != nil {
		return nil, 0, fmt.Errorf("hls: decoding playlist: %w", err)
	}
	return playlist, kind, nil
}

func (f *hlsFetcher) copySegment(ctx context.Context, segmentURL string, out io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, segmentURL, nil)
	if err != nil {
		return fmt.Errorf("hls: building request: %w", err)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("hls: fetching segment: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("hls: segment %s: status %d", segmentURL, resp.StatusCode)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("hls: writing segment: %w", err)
	}
	return nil
}

// pickVariant prefers audio-only renditions, then the lowest bandwidth.
func pickVariant(master *m3u8.MasterPlaylist) *m3u8.Variant {
	var best *m3u8.Variant
	for _, variant := range master.Variants {
		if variant == nil {
			continue
		}
		audioOnly := variant.Resolution == "" && variant.Codecs != ""
		if best == nil {
			best = variant
			continue
		}
		bestAudioOnly := best.Resolution == "" && best.Codecs != ""
		switch {
		case audioOnly && !bestAudioOnly:
			best = variant
		case audioOnly == bestAudioOnly && variant.Bandwidth < best.Bandwidth:
			best = variant
		}
	}
	return best
}

func resolveURL(base, ref string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return baseURL.ResolveReference(refURL).String(), nil
}
