// Command fakebench serves one or more in-process benchmark endpoints so
// benchan can be tried without a real Nchan deployment.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/torosent/benchan/internal/benchtest"
)

func main() {
	port := flag.Int("port", 8090, "First listening port")
	count := flag.Int("count", 1, "Number of endpoints, on consecutive ports")
	channels := flag.Int64("channels", 10, "Channels reported per endpoint")
	subscribers := flag.Int64("subscribers", 100, "Subscribers reported per endpoint")
	runTime := flag.Duration("run-time", 10*time.Second, "Reported benchmark duration")
	resultsDelay := flag.Duration("results-delay", time.Second, "Pause between initialize and RESULTS")
	flag.Parse()

	if *port <= 0 || *count <= 0 {
		log.Fatalf("port and count must be > 0")
	}

	secs := runTime.Seconds()
	payload := benchtest.Payload{
		Channels:       *channels,
		Subscribers:    *subscribers,
		RunTimeSec:     secs,
		MessageLength:  128,
		Sent:           *channels * int64(secs) * 10,
		Received:       *subscribers * int64(secs) * 10,
		PublishMicros:  []int64{400, 650, 900, 1200, 3100},
		DeliveryMicros: []int64{800, 1100, 1500, 2400, 7600},
	}
	body, err := payload.JSON()
	if err != nil {
		log.Fatalf("encode payload: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	servers := make([]*http.Server, 0, *count)
	for i := 0; i < *count; i++ {
		addr := fmt.Sprintf("127.0.0.1:%d", *port+i)
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			log.Fatalf("listen %s: %v", addr, err)
		}
		srv := &http.Server{
			Handler:           benchtest.Handler(benchtest.Behavior{Payload: body, ResultsDelay: *resultsDelay}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		servers = append(servers, srv)
		go func() {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("serve %s: %v", addr, err)
			}
		}()
		log.Printf("benchmark endpoint listening on ws://%s/", addr)
	}

	<-ctx.Done()
	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	for _, srv := range servers {
		_ = srv.Shutdown(shutdownCtx)
	}
}
