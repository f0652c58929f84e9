package testing

import (
	"fmt"
	"strconv"
	"testing"

	"github.com/ValentinKolb/wbKV/lib/loaderwriter"
)

// RunLoaderWriterBenchmarks runs the standard benchmarks against a loader-writer implementation.
func RunLoaderWriterBenchmarks(b *testing.B, name string, factory Factory) {
	b.Run(name, func(b *testing.B) {
		b.Run("Write", func(b *testing.B) {
			lw, cleanup := factory(b)
			defer cleanup()

			value := []byte("benchmark-value")
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if err := lw.Write(strconv.Itoa(i%1024), value); err != nil {
					b.Fatal(err)
				}
			}
		})

		b.Run("Load", func(b *testing.B) {
			lw, cleanup := factory(b)
			defer cleanup()

			for i := 0; i < 1024; i++ {
				_ = lw.Write(strconv.Itoa(i), []byte("benchmark-value"))
			}
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, _, err := lw.Load(strconv.Itoa(i % 1024)); err != nil {
					b.Fatal(err)
				}
			}
		})

		b.Run("WriteAll/64", func(b *testing.B) {
			lw, cleanup := factory(b)
			defer cleanup()

			entries := make([]loaderwriter.Entry[string, []byte], 64)
			for i := range entries {
				entries[i] = loaderwriter.Entry[string, []byte]{Key: fmt.Sprintf("bulk-%d", i), Value: []byte("v")}
			}
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if err := lw.WriteAll(entries); err != nil {
					b.Fatal(err)
				}
			}
		})

		b.Run("Parallel", func(b *testing.B) {
			lw, cleanup := factory(b)
			defer cleanup()

			b.RunParallel(func(pb *testing.PB) {
				i := 0
				for pb.Next() {
					key := strconv.Itoa(i % 1024)
					if i%4 == 0 {
						_ = lw.Write(key, []byte("v"))
					} else {
						_, _, _ = lw.Load(key)
					}
					i++
				}
			})
		})
	})
}
