package fiber

import (
	"fmt"
	"strings"
)

// Kind identifies the variant of a Fiber.
type Kind uint8

const (
	KindData   Kind = iota + 1 // column chunk of one row group
	KindBTree                  // B+tree index node
	KindBitmap                 // bitmap index node
	KindTest                   // opaque key for tests
)

func (k Kind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindBTree:
		return "btree"
	case KindBitmap:
		return "bitmap"
	case KindTest:
		return "test"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Fiber identifies one cacheable unit of decoded data.
//
// The set of implementations is closed: only the key types of this package
// satisfy it. All of them are comparable values, so two equal keys address
// the same cache entry and can be used directly as map keys.
type Fiber interface {
	// Kind returns the variant tag.
	Kind() Kind
	// String returns a textual form that is unique per key.
	String() string

	sealed()
}

// DataFiber addresses the chunk of one column within one row group of a data file.
type DataFiber struct {
	File     string
	RowGroup int
	Column   int
}

func (DataFiber) Kind() Kind { return KindData }

func (f DataFiber) String() string {
	return fmt.Sprintf("data(%q,%d,%d)", f.File, f.RowGroup, f.Column)
}

func (DataFiber) sealed() {}

// BTreeFiber addresses one node of a B+tree index file.
type BTreeFiber struct {
	File string
	Node int
}

func (BTreeFiber) Kind() Kind { return KindBTree }

func (f BTreeFiber) String() string {
	return fmt.Sprintf("btree(%q,%d)", f.File, f.Node)
}

func (BTreeFiber) sealed() {}

// BitmapFiber addresses one node of a bitmap index file.
type BitmapFiber struct {
	File string
	Node int
}

func (BitmapFiber) Kind() Kind { return KindBitmap }

func (f BitmapFiber) String() string {
	return fmt.Sprintf("bitmap(%q,%d)", f.File, f.Node)
}

func (BitmapFiber) sealed() {}

// TestFiber is an opaque key with no backing file.
type TestFiber struct {
	Name string
}

func (TestFiber) Kind() Kind { return KindTest }

func (f TestFiber) String() string {
	return fmt.Sprintf("test(%q)", f.Name)
}

func (TestFiber) sealed() {}

// FilePath returns the path of the file that owns f, or "" for TestFiber.
func FilePath(f Fiber) string {
	return Visit[string](f, filePathVisitor{})
}

type filePathVisitor struct{}

func (filePathVisitor) Data(f DataFiber) string     { return f.File }
func (filePathVisitor) BTree(f BTreeFiber) string   { return f.File }
func (filePathVisitor) Bitmap(f BitmapFiber) string { return f.File }
func (filePathVisitor) Test(TestFiber) string       { return "" }

// IsIndex reports whether f is a node of an index structure.
func IsIndex(f Fiber) bool {
	return Visit[bool](f, isIndexVisitor{})
}

type isIndexVisitor struct{}

func (isIndexVisitor) Data(DataFiber) bool     { return false }
func (isIndexVisitor) BTree(BTreeFiber) bool   { return true }
func (isIndexVisitor) Bitmap(BitmapFiber) bool { return true }
func (isIndexVisitor) Test(TestFiber) bool     { return false }

// IndexFileMatcher returns a predicate selecting index fibers whose file
// path contains name.
func IndexFileMatcher(name string) func(Fiber) bool {
	return func(f Fiber) bool {
		return IsIndex(f) && strings.Contains(FilePath(f), name)
	}
}
