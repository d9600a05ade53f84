package hubapi

import (
	"net/url"
	"strings"

	"github.com/netresearch/hub-server/internal/herr"
)

// sameOrigin implements the hub data API's "same-origin assertion" (spec
// §4.I): the Referer's top-two host labels must match the server's, unless
// the server name is 127.0.0.1 or ANY/ALL (config escape hatches for local
// development and permissive vhosts).
func sameOrigin(referer, serverHostname string) error {
	if serverHostname == "127.0.0.1" || serverHostname == "ANY" || serverHostname == "ALL" {
		return nil
	}

	if referer == "" {
		return herr.New(herr.Forbidden, "hub data API requires a Referer header")
	}

	u, err := url.Parse(referer)
	if err != nil || u.Hostname() == "" {
		return herr.New(herr.Forbidden, "hub data API: unparseable Referer")
	}

	if topTwoLabels(u.Hostname()) != topTwoLabels(serverHostname) {
		return herr.New(herr.Forbidden, "hub data API: cross-origin Referer")
	}

	return nil
}

// topTwoLabels returns the last two dot-separated labels of host (e.g.
// "a.b.example.com" -> "example.com"), or host unchanged if it has fewer
// than two labels.
func topTwoLabels(host string) string {
	host = strings.ToLower(strings.TrimSuffix(host, "."))

	labels := strings.Split(host, ".")
	if len(labels) < 2 {
		return host
	}

	return strings.Join(labels[len(labels)-2:], ".")
}
