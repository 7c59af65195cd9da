package ratelimit

import "strings"

// MatchEndpoint returns the limit that applies to method and path, or nil
// when the request is unlimited. An exact path wins. Otherwise a config
// whose path ends in "/" covers everything under it, so "/prompts/" would
// cover "/prompts/{id}/use"; the longest such prefix is chosen.
func MatchEndpoint(path, method string, configs []EndpointConfig) *EndpointConfig {
	var prefix *EndpointConfig
	for i := range configs {
		c := &configs[i]
		if c.Method != method {
			continue
		}
		if c.Path == path {
			return c
		}
		if strings.HasSuffix(c.Path, "/") && strings.HasPrefix(path, c.Path) {
			if prefix == nil || len(c.Path) > len(prefix.Path) {
				prefix = c
			}
		}
	}
	return prefix
}
