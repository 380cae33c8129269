package config

import "github.com/opensrf-project/opensrf-go/internal/message"

// HostConfig is the per-service settings obtained by calling
// opensrf.settings.host_config(hostname) after bus connect (spec §6).
type HostConfig struct {
	Services map[string]ServiceConfig
	Cache    []string // "host:port" entries from cache.global.servers.server
}

// ServiceConfig is apps.<svc>.* (spec §6).
type ServiceConfig struct {
	Language       string
	Implementation string
	Keepalive      int
	MaxRequests    int
	MaxChildren    int
	MinChildren    int
}

// ParseHostConfig decodes the host_config RESULT content into a
// HostConfig. The content arrives as a registered-class-free nested
// object (spec's settings reply is plain hash data, not a wire class).
func ParseHostConfig(v message.Value) HostConfig {
	hc := HostConfig{Services: make(map[string]ServiceConfig)}

	obj, _, ok := v.Object()
	if !ok {
		return hc
	}
	appsObj, _, ok := obj["apps"].Object()
	if ok {
		for name, svcVal := range appsObj {
			svcObj, _, _ := svcVal.Object()
			sc := ServiceConfig{}
			if s, ok := svcObj["language"].String(); ok {
				sc.Language = s
			}
			if s, ok := svcObj["implementation"].String(); ok {
				sc.Implementation = s
			}
			if i, ok := svcObj["keepalive"].Int(); ok {
				sc.Keepalive = int(i)
			}
			if unixObj, _, ok := svcObj["unix_config"].Object(); ok {
				if i, ok := unixObj["max_requests"].Int(); ok {
					sc.MaxRequests = int(i)
				}
				if i, ok := unixObj["max_children"].Int(); ok {
					sc.MaxChildren = int(i)
				}
				if i, ok := unixObj["min_children"].Int(); ok {
					sc.MinChildren = int(i)
				}
			}
			hc.Services[name] = sc
		}
	}

	if cacheObj, _, ok := obj["cache"].Object(); ok {
		if globalObj, _, ok := cacheObj["global"].Object(); ok {
			if serversObj, _, ok := globalObj["servers"].Object(); ok {
				if arr, ok := serversObj["server"].Array(); ok {
					for _, sv := range arr {
						if s, ok := sv.String(); ok {
							hc.Cache = append(hc.Cache, s)
						}
					}
				} else if s, ok := serversObj["server"].String(); ok {
					hc.Cache = append(hc.Cache, s)
				}
			}
		}
	}

	return hc
}
