package fiber

import "fmt"

// Visitor handles every Fiber variant.
//
// Adding a variant adds a method here, which breaks every implementation
// until it handles the new case.
type Visitor[T any] interface {
	Data(DataFiber) T
	BTree(BTreeFiber) T
	Bitmap(BitmapFiber) T
	Test(TestFiber) T
}

// Visit dispatches f to the matching method of v.
func Visit[T any](f Fiber, v Visitor[T]) T {
	switch f := f.(type) {
	case DataFiber:
		return v.Data(f)
	case BTreeFiber:
		return v.BTree(f)
	case BitmapFiber:
		return v.Bitmap(f)
	case TestFiber:
		return v.Test(f)
	default:
		// Unreachable: Fiber is sealed.
		panic(fmt.Sprintf("fiber: unknown variant %T", f))
	}
}
