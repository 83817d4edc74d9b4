// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the HTTP client for a local Ollama server.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"

	"github.com/rs/zerolog/log"
)

// StreamCallback is called once per streamed chunk.
type StreamCallback func(chunk ChatResponse)

// =============================================================================
// STREAM READER
// =============================================================================

// StreamReader reads newline-delimited JSON chunks.
type StreamReader struct {
	reader *bufio.Reader
	chunks int
}

// NewStreamReader creates a new stream reader from an io.Reader.
func NewStreamReader(r io.Reader) *StreamReader {
	return &StreamReader{reader: bufio.NewReader(r)}
}

// Process reads the stream and calls the callback for each chunk.
// It returns when Ollama reports done, the body ends, or ctx is cancelled.
// A body that ends without a done chunk is an error.
func (s *StreamReader) Process(ctx context.Context, callback StreamCallback) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		chunk, err := s.readChunk()
		if err == io.EOF {
			return &ClientError{Type: ErrTypeConnection, Message: "stream ended before completion", Cause: io.ErrUnexpectedEOF}
		}
		if err != nil {
			return err
		}
		if chunk == nil {
			continue
		}
		if chunk.Error != "" {
			return &ClientError{Type: ErrTypeInvalidResponse, Message: chunk.Error}
		}
		callback(*chunk)
		if chunk.Done {
			return nil
		}
	}
}

// Chunks returns the number of chunks parsed so far.
func (s *StreamReader) Chunks() int {
	return s.chunks
}

// readChunk parses one line. Blank and malformed lines yield (nil, nil).
func (s *StreamReader) readChunk() (*ChatResponse, error) {
	line, err := s.reader.ReadBytes('\n')
	if err != nil && err != io.EOF {
		return nil, &ClientError{Type: ErrTypeConnection, Message: "stream read failed", Cause: err}
	}
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, nil
	}

	var chunk ChatResponse
	if jsonErr := json.Unmarshal(line, &chunk); jsonErr != nil {
		log.Debug().Err(jsonErr).Int("bytes", len(line)).Msg("skipping malformed stream line")
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, nil
	}
	s.chunks++
	return &chunk, nil
}
