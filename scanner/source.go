package scanner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
)

// Source produces raw payloads one at a time. Next returns io.EOF once the
// source is exhausted.
type Source interface {
	Next(ctx context.Context) (string, error)
}

// ChannelSource delivers payloads pushed by a decode loop, such as a camera
// frame reader. Closing the channel ends the source.
type ChannelSource struct {
	ch <-chan string
}

func NewChannelSource(ch <-chan string) *ChannelSource {
	return &ChannelSource{ch: ch}
}

func (s *ChannelSource) Next(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case payload, ok := <-s.ch:
		if !ok {
			return "", io.EOF
		}
		return payload, nil
	}
}

// LineSource reads manually entered payloads, one per non-blank line.
// Reads are not interruptible; ctx is checked between lines.
type LineSource struct {
	sc   *bufio.Scanner
	done bool
}

func NewLineSource(r io.Reader) *LineSource {
	return &LineSource{sc: bufio.NewScanner(r)}
}

func (s *LineSource) Next(ctx context.Context) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if s.done {
			return "", io.EOF
		}
		if !s.sc.Scan() {
			s.done = true
			if err := s.sc.Err(); err != nil {
				return "", err
			}
			return "", io.EOF
		}
		if line := strings.TrimSpace(s.sc.Text()); line != "" {
			return line, nil
		}
	}
}

// ImageSource decodes QR codes from image files in order.
type ImageSource struct {
	paths []string
	next  int
	open  func(string) (io.ReadCloser, error)
}

func NewImageSource(paths ...string) *ImageSource {
	return &ImageSource{
		paths: paths,
		open:  func(p string) (io.ReadCloser, error) { return os.Open(p) },
	}
}

func (s *ImageSource) Next(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.next >= len(s.paths) {
		return "", io.EOF
	}

	path := s.paths[s.next]
	s.next++

	f, err := s.open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	payload, err := DecodeImage(f)
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	return payload, nil
}
