// Package testing provides a conformance suite and benchmarks for
// implementations of loaderwriter.ILoaderWriter[string, []byte].
//
// Every backend in lib/backend runs the suite, and so does the write-behind
// decorator: because pending writes are visible to reads immediately, the
// decorator has to pass the same suite as a synchronous backend.
//
// Example usage:
//
//	factory := func(t testing.TB) (lwtesting.LoaderWriter, func()) {
//		s := memstore.New(16)
//		return s, func() {}
//	}
//
//	lwtesting.RunLoaderWriterTests(t, "memstore", factory)
//	lwtesting.RunLoaderWriterBenchmarks(b, "memstore", factory)
package testing
