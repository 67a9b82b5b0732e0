package client

import (
	"context"
	"fmt"

	"github.com/grandcat/zeroconf"
)

// mdnsService must match the type the server registers (server.MDNSService).
const mdnsService = "_bpmn-collab._tcp"

// Discover browses the local network for a collaboration server and returns
// the first host:port found. The caller bounds the wait through ctx.
func Discover(ctx context.Context) (string, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return "", fmt.Errorf("init mDNS resolver: %w", err)
	}
	entries := make(chan *zeroconf.ServiceEntry)
	if err := resolver.Browse(ctx, mdnsService, "local.", entries); err != nil {
		return "", fmt.Errorf("browse mDNS: %w", err)
	}
	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return "", fmt.Errorf("no server found")
			}
			if entry != nil && len(entry.AddrIPv4) > 0 {
				return fmt.Sprintf("%s:%d", entry.AddrIPv4[0], entry.Port), nil
			}
		case <-ctx.Done():
			return "", fmt.Errorf("no server found: %w", ctx.Err())
		}
	}
}
