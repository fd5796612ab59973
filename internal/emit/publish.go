package emit

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	stagingPrefix  = ".rnbundle-"
	retiredPrefix  = ".rnbundle-old-"
	renameAttempts = 5
)

// Result describes the published output.
type Result struct {
	Dir   string
	Files []WrittenFile
	// Bytes is the total size of chunk files, excluding sidecars, manifest and HTML
	Bytes           int64
	CompressedBytes int64
}

// WrittenFile is one chunk file in the published output.
type WrittenFile struct {
	Name       string
	Chunk      string
	Size       int
	Compressed int
}

// Write publishes a rendered bundle. Files are staged in a sibling temporary
// directory: chunks in parallel, then the manifest, then the HTML shell. The
// staged directory then replaces the output path by rename. On any failure the
// staging directory is removed and the output path is left as it was.
func (e *Emitter) Write(ctx context.Context, b *Bundle) (*Result, error) {
	logger := zerolog.Ctx(ctx)

	out := e.output.Path
	parent := filepath.Dir(out)
	if err := os.MkdirAll(parent, 0750); err != nil {
		return nil, &EmitError{Op: "mkdir", Path: parent, Cause: err}
	}

	staging := filepath.Join(parent, stagingPrefix+uuid.NewString())
	if err := os.Mkdir(staging, 0750); err != nil {
		return nil, &EmitError{Op: "mkdir", Path: staging, Cause: err}
	}

	published := false
	defer func() {
		if published {
			return
		}
		if err := os.RemoveAll(staging); err != nil {
			logger.Warn().Err(err).Str("dir", staging).Msg("Failed to remove staging directory")
		}
	}()

	var enc *zstd.Encoder
	if e.output.Compress {
		var err error
		enc, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, &EmitError{Op: "compress", Path: out, Cause: err}
		}
		defer enc.Close()
	}

	files := make([]WrittenFile, len(b.Chunks))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(e.workers)

	for i, a := range b.Chunks {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}

			if err := writeFile(staging, a.Name, a.Data); err != nil {
				return err
			}
			files[i] = WrittenFile{Name: a.Name, Chunk: a.Chunk, Size: len(a.Data)}

			if enc != nil {
				compressed := enc.EncodeAll(a.Data, make([]byte, 0, len(a.Data)/2))
				if err := writeFile(staging, a.Name+".zst", compressed); err != nil {
					return err
				}
				files[i].Compressed = len(compressed)
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	if err := writeFile(staging, b.Manifest.Name, b.Manifest.Data); err != nil {
		return nil, err
	}

	// the shell references the chunks, so it is written after all of them
	if err := writeFile(staging, b.HTML.Name, b.HTML.Data); err != nil {
		return nil, err
	}

	if err := swap(ctx, staging, out, b.Manifest.Name); err != nil {
		return nil, err
	}
	published = true

	res := &Result{Dir: out, Files: files}
	for _, f := range files {
		res.Bytes += int64(f.Size)
		res.CompressedBytes += int64(f.Compressed)
	}

	logger.Info().
		Str("dir", out).
		Int("files", len(files)).
		Int64("bytes", res.Bytes).
		Msg("Published bundle")

	return res, nil
}

func writeFile(dir, name string, data []byte) error {
	target := filepath.Join(dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(target), 0750); err != nil {
		return &EmitError{Op: "mkdir", Path: name, Cause: err}
	}
	if err := os.WriteFile(target, data, 0600); err != nil {
		return &EmitError{Op: "write", Path: name, Cause: err}
	}
	return nil
}

// swap replaces out with staged. An existing output directory is moved aside
// first and restored if the second rename fails. Only an empty directory or one
// holding a previous build's manifest is ever moved aside.
func swap(ctx context.Context, staged, out, manifest string) error {
	logger := zerolog.Ctx(ctx)

	var retired string
	switch _, err := os.Lstat(out); {
	case err == nil:
		if err := replaceable(out, manifest); err != nil {
			return &EmitError{Op: "publish", Path: out, Cause: err}
		}
		retired = filepath.Join(filepath.Dir(out), retiredPrefix+uuid.NewString())
		if err := rename(ctx, out, retired); err != nil {
			return &EmitError{Op: "publish", Path: out, Cause: err}
		}
	case !errors.Is(err, fs.ErrNotExist):
		return &EmitError{Op: "publish", Path: out, Cause: err}
	}

	if err := rename(ctx, staged, out); err != nil {
		if retired != "" {
			if restoreErr := os.Rename(retired, out); restoreErr != nil {
				logger.Error().Err(restoreErr).Str("dir", retired).Msg("Failed to restore previous output")
			}
		}
		return &EmitError{Op: "publish", Path: out, Cause: err}
	}

	if retired != "" {
		if err := os.RemoveAll(retired); err != nil {
			logger.Warn().Err(err).Str("dir", retired).Msg("Failed to remove previous output")
		}
	}
	return nil
}

// rename retries transient failures, such as a scanner or indexer briefly
// holding the directory open. A missing source is not retried.
func rename(ctx context.Context, from, to string) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := os.Rename(from, to)
		if errors.Is(err, fs.ErrNotExist) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(renameAttempts))

	return err
}
