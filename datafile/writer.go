package datafile

import (
	"context"
	"fmt"
	"runtime"

	"github.com/hupe1980/fibercache/blobstore"
	"golang.org/x/sync/errgroup"
)

// Writer assembles a data file in memory.
//
// Chunks are addressed like DataFibers: (rowGroup, column). Unset chunks are
// written empty. An index file for BTree or Bitmap fibers is a file with one
// row group whose columns are the nodes; see NewIndexWriter.
type Writer struct {
	rowGroups int
	fields    int
	codec     Codec
	chunks    [][]byte
}

// NewWriter creates a writer for a rowGroups × fields file. Every chunk is
// encoded with codec unless compression does not pay off.
func NewWriter(rowGroups, fields int, codec Codec) (*Writer, error) {
	if rowGroups < 0 || fields < 0 {
		return nil, fmt.Errorf("datafile: invalid dimensions %dx%d", rowGroups, fields)
	}
	if !codec.valid() {
		return nil, fmt.Errorf("datafile: unknown codec %s", codec)
	}
	return &Writer{
		rowGroups: rowGroups,
		fields:    fields,
		codec:     codec,
		chunks:    make([][]byte, rowGroups*fields),
	}, nil
}

// NewIndexWriter creates a writer for an index file with the given number
// of nodes.
func NewIndexWriter(nodes int, codec Codec) (*Writer, error) {
	return NewWriter(1, nodes, codec)
}

// SetChunk stores the raw bytes of (rowGroup, column). data is retained.
func (w *Writer) SetChunk(rowGroup, column int, data []byte) error {
	if rowGroup < 0 || rowGroup >= w.rowGroups || column < 0 || column >= w.fields {
		return fmt.Errorf("%w: (%d,%d) in %dx%d", ErrOutOfRange, rowGroup, column, w.rowGroups, w.fields)
	}
	w.chunks[rowGroup*w.fields+column] = data
	return nil
}

// SetNode stores the raw bytes of an index node.
func (w *Writer) SetNode(node int, data []byte) error {
	return w.SetChunk(0, node, data)
}

// Encode compresses all chunks in parallel and returns the file bytes.
func (w *Writer) Encode(ctx context.Context) ([]byte, error) {
	encoded := make([][]byte, len(w.chunks))
	codecs := make([]Codec, len(w.chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, raw := range w.chunks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out, c, err := encodeChunk(raw, w.codec)
			if err != nil {
				return fmt.Errorf("datafile: encode chunk %d: %w", i, err)
			}
			encoded[i], codecs[i] = out, c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var total int
	for _, e := range encoded {
		total += len(e)
	}

	out := make([]byte, 0, total+headerSize+len(w.chunks)*entrySize+trailerSize)
	entries := make([]Chunk, len(w.chunks))
	for i, e := range encoded {
		entries[i] = Chunk{
			Offset:    int64(len(out)),
			Length:    uint32(len(e)),
			RawLength: uint32(len(w.chunks[i])),
			Codec:     codecs[i],
		}
		out = append(out, e...)
	}
	return appendFooter(out, w.rowGroups, w.fields, entries), nil
}

// Put encodes the file and writes it to store under name.
func (w *Writer) Put(ctx context.Context, store blobstore.WritableStore, name string) error {
	data, err := w.Encode(ctx)
	if err != nil {
		return err
	}
	if err := store.Put(ctx, name, data); err != nil {
		return fmt.Errorf("datafile: put %s: %w", name, err)
	}
	return nil
}
