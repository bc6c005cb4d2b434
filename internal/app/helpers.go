package app

import (
	"log"
	"strings"
)

// normalizeLoopback forces the viewer to bind to localhost and returns the
// listen address plus the browser URL.
func normalizeLoopback(cfgAddr string) (listenAddr, url string) {
	a := strings.TrimSpace(cfgAddr)
	if a == "" {
		a = "127.0.0.1:7777"
	}
	if strings.HasPrefix(a, ":") {
		a = "127.0.0.1" + a
	}
	if strings.HasPrefix(a, "0.0.0.0:") {
		a = "127.0.0.1:" + strings.TrimPrefix(a, "0.0.0.0:")
	}
	return a, "http://" + a
}

func logBanner(dataDir, cfgPath string) {
	log.Println("────────────────────────────────────────")
	log.Println("teamloop client")
	log.Printf(" Data folder : %s", dataDir)
	log.Printf(" Config file : %s", cfgPath)
	log.Println("────────────────────────────────────────")
}
