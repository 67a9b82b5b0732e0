// A headless sync agent: joins a document, mirrors every snapshot into a
// local bbolt cache and logs presence and lock traffic. Useful as an
// always-on backup peer and as a reference client.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Henryk91/bpmn-collaborator/internal/client"
)

func main() {
	serverURL := flag.String("server", "", "server base URL; discovered over mDNS when empty")
	docID := flag.String("doc", "", "document id to mirror (required)")
	name := flag.String("name", "mirror", "display name to request")
	cachePath := flag.String("cache", "bpmn-agent.db", "snapshot cache file")
	flag.Parse()

	if *docID == "" {
		flag.Usage()
		os.Exit(2)
	}
	if err := run(*serverURL, *docID, *name, *cachePath); err != nil {
		log.Fatal(err)
	}
}

func run(serverURL, docID, name, cachePath string) error {
	if serverURL == "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		addr, err := client.Discover(ctx)
		if err != nil {
			return err
		}
		serverURL = "http://" + addr
		log.Printf("Discovered server at %s", serverURL)
	}

	cache, err := client.OpenCache(cachePath)
	if err != nil {
		return err
	}
	defer cache.Close()
	if content, ok, err := cache.Get(docID); err == nil && ok {
		log.Printf("Cached snapshot available (%d bytes)", len(content))
	}

	surface := &mirrorSurface{}
	agent := client.NewAgent(nil, surface, client.AgentOptions{
		DocID: docID,
		Cache: cache,
		OnUsers: func(users []string) {
			log.Printf("Online users: %v", users)
		},
	})

	endpoint, err := client.EndpointURL(serverURL, docID, name)
	if err != nil {
		return err
	}
	tr := client.NewTransport(endpoint, client.TransportOptions{
		OnMessage: agent.HandleMessage,
		OnState: func(s client.State) {
			log.Printf("Connection %s", s)
		},
	})
	agent.SetSender(tr)
	tr.Start()

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-exit
	log.Printf("Signal caught: %v", sig)
	return tr.Close()
}

// mirrorSurface is a Surface without an editor behind it: it keeps the
// imported snapshot in memory and logs lock markers.
type mirrorSurface struct {
	mu      sync.Mutex
	content string
}

func (m *mirrorSurface) ImportContent(ctx context.Context, content string) error {
	m.mu.Lock()
	m.content = content
	m.mu.Unlock()
	log.Printf("Applied snapshot (%d bytes)", len(content))
	return nil
}

func (m *mirrorSurface) ExportContent(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.content, nil
}

func (m *mirrorSurface) AddLockMarker(elementID, userName string) {
	log.Printf("Element %s locked by %s", elementID, userName)
}

func (m *mirrorSurface) RemoveLockMarker(elementID string) {
	log.Printf("Element %s unlocked", elementID)
}
