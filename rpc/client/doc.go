// Package client implements the RPC client of wbKV.
//
// NewRPCLoaderWriter returns a loaderwriter.ILoaderWriter[string, []byte] for
// one shard of a server, plus Flush for waiting on the server's write-behind
// queue. Error responses are rebuilt as *loaderwriter.Error with the code the
// server sent, so the usual checks work across the network:
//
//	if errors.Is(err, loaderwriter.ErrQueueFull) {
//		// back off
//	}
//
// Usage Example:
//
//	config := common.ClientConfig{
//	  Endpoints:     []string{"http://localhost:8080"},
//	  TimeoutSecond: 5,
//	  RetryCount:    3,
//	}
//
//	lw, _ := client.NewRPCLoaderWriter(100, config, http.NewHttpClientTransport(), serializer.NewBinarySerializer())
//	defer lw.Close()
//
//	_ = lw.Write("mykey", []byte("myvalue"))
//	value, found, _ := lw.Load("mykey") // sees the pending write
//	_ = lw.Flush()                      // now it is in the backend
//
// Thread Safety:
//
//	The client is safe for concurrent use as long as its transport is, which
//	holds for the http, tcp and unix transports.
package client
