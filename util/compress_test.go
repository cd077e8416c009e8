package util_test

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/downfa11-org/xstream/util"
	"github.com/stretchr/testify/require"
)

var codecs = []string{"gzip", "snappy", "lz4", "zstd", "none"}

// TestCompressMessage_AllTypes tests all supported compression types
func TestCompressMessage_AllTypes(t *testing.T) {
	testData := []byte("Hello, World! This is a test string for compression.")

	tests := []struct {
		name            string
		compressionType string
		expectError     bool
	}{
		{"gzip", "gzip", false},
		{"snappy", "snappy", false},
		{"lz4", "lz4", false},
		{"zstd", "zstd", false},
		{"none", "none", false},
		{"empty", "", false},
		{"unsupported", "unknown", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := util.CompressMessage(testData, tt.compressionType)
			if tt.expectError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)

			if tt.compressionType == "none" || tt.compressionType == "" {
				require.Equal(t, testData, result)
			} else {
				require.NotNil(t, result)
			}
		})
	}
}

func TestDecompressMessage_Unsupported(t *testing.T) {
	_, err := util.DecompressMessage([]byte("invalid"), "unknown")
	require.Error(t, err)
}

// TestCompressDecompressRoundtrip verifies roundtrip compression/decompression
func TestCompressDecompressRoundtrip(t *testing.T) {
	testCases := [][]byte{
		[]byte("a"),
		[]byte("Hello, World!"),
		make([]byte, 1000),
		make([]byte, 10000),
	}

	for _, tc := range testCases {
		for _, ct := range codecs {
			if ct == "snappy" && len(tc) <= 1 {
				continue
			}

			t.Run(fmt.Sprintf("%s_%dB", ct, len(tc)), func(t *testing.T) {
				compressed, err := util.CompressMessage(tc, ct)
				require.NoError(t, err)

				decompressed, err := util.DecompressMessage(compressed, ct)
				require.NoError(t, err)
				require.True(t, bytes.Equal(decompressed, tc), "roundtrip failed: original=%d decompressed=%d", len(tc), len(decompressed))
			})
		}
	}
}

func TestIsValidCompression(t *testing.T) {
	for _, ct := range append(codecs, "") {
		require.True(t, util.IsValidCompression(ct), ct)
	}
	require.False(t, util.IsValidCompression("brotli"))
}

// TestConcurrentCompression tests thread safety of compression functions
func TestConcurrentCompression(t *testing.T) {
	testData := []byte("Hello, concurrent compression")

	var wg sync.WaitGroup
	errCh := make(chan error, 100)

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()

			compType := codecs[id%len(codecs)]

			c, err := util.CompressMessage(testData, compType)
			if err != nil {
				errCh <- fmt.Errorf("compress failed (id=%d type=%s): %v", id, compType, err)
				return
			}

			d, err := util.DecompressMessage(c, compType)
			if err != nil {
				errCh <- fmt.Errorf("decompress failed (id=%d type=%s): %v", id, compType, err)
				return
			}

			if !bytes.Equal(d, testData) {
				errCh <- fmt.Errorf("data mismatch (id=%d type=%s)", id, compType)
			}
		}(i)
	}

	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Error(err)
	}
}

func TestCompressionID(t *testing.T) {
	for _, c := range []string{"none", "gzip", "snappy", "lz4", "zstd"} {
		name, ok := util.CompressionByID(util.CompressionID(c))
		require.True(t, ok)
		require.Equal(t, c, name)
	}
	require.Equal(t, byte(0), util.CompressionID("brotli"))

	_, ok := util.CompressionByID(42)
	require.False(t, ok)
}
