package server

import (
	"fmt"
	"os"

	"github.com/grandcat/zeroconf"
)

// MDNSService is the service type advertised on the local network so agents
// can find a server without configuration.
const MDNSService = "_bpmn-collab._tcp"

// AdvertiseMDNS registers this server instance over mDNS. The returned stop
// function withdraws the registration.
func AdvertiseMDNS(port int) (func(), error) {
	host, _ := os.Hostname()
	srv, err := zeroconf.Register(
		fmt.Sprintf("bpmn-collaborator-%s", host),
		MDNSService,
		"local.",
		port,
		[]string{"v=1"},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("register mDNS service: %w", err)
	}
	return srv.Shutdown, nil
}
