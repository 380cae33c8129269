// Package config parses the bootstrap XML file (spec §6) into a generic
// node tree, and holds the settings-host config obtained post-connect
// from opensrf.settings.host_config. No pack example does generic
// object<->XML config mapping (see DESIGN.md); this is stdlib
// encoding/xml, matching the choice already made in internal/codec/xml.go.
package config

import (
	"encoding/xml"
	"strconv"

	"github.com/pkg/errors"

	"github.com/opensrf-project/opensrf-go/internal/obslog"
)

// Node is one element of the bootstrap config tree: its text content
// plus named children, preserving repetition (spec's "routers.router
// (list or single)").
type Node struct {
	XMLName  xml.Name
	Content  string     `xml:",chardata"`
	Children []Node     `xml:",any"`
}

// Child returns the first child named name, if any.
func (n Node) Child(name string) (Node, bool) {
	for _, c := range n.Children {
		if c.XMLName.Local == name {
			return c, true
		}
	}
	return Node{}, false
}

// ChildrenNamed returns every child named name, preserving order.
func (n Node) ChildrenNamed(name string) []Node {
	var out []Node
	for _, c := range n.Children {
		if c.XMLName.Local == name {
			out = append(out, c)
		}
	}
	return out
}

// Text returns n's own chardata, trimmed of nothing (callers trim as
// needed; bootstrap values are rarely whitespace-padded in practice).
func (n Node) Text() string { return n.Content }

// ParseBootstrap parses the bootstrap XML document into its root Node.
func ParseBootstrap(data []byte) (Node, error) {
	var root Node
	if err := xml.Unmarshal(data, &root); err != nil {
		return Node{}, errors.Wrap(err, "config: parse bootstrap XML")
	}
	return root, nil
}

// Bootstrap is the resolved set of keys required under a chosen context
// (spec §6 "Bootstrap configuration"). Router records are normalized
// from either the `routers.router` list or the legacy `domains.domain`
// alias.
type Bootstrap struct {
	Domain     string
	Port       int
	Username   string
	Password   string
	RouterName string
	LogFile    string
	Syslog     string
	LogLevel   obslog.Level
	Routers    []RouterConfig
}

// RouterConfig is one configured router target (spec §4.5 "Routers are
// discovered from configuration either as {name, domain, services?}
// records or as a bare domain").
type RouterConfig struct {
	Name     string
	Domain   string
	Services []string
}

// ResolveBootstrap extracts a Bootstrap from the named context node
// (e.g. "config.opensrf" per the worker launcher's default -c value).
func ResolveBootstrap(root Node, context string) (Bootstrap, error) {
	ctxNode, ok := root.Child(context)
	if !ok {
		ctxNode = root // some deployments have no wrapping context element
	}

	get := func(name string) (string, bool) {
		c, ok := ctxNode.Child(name)
		if !ok {
			return "", false
		}
		return c.Text(), true
	}

	b := Bootstrap{}
	var ok bool
	if b.Domain, ok = get("domain"); !ok {
		return Bootstrap{}, errors.New("config: missing required key \"domain\"")
	}
	if portStr, ok := get("port"); ok {
		p, err := strconv.Atoi(portStr)
		if err != nil {
			return Bootstrap{}, errors.Wrap(err, "config: parse \"port\"")
		}
		b.Port = p
	} else {
		return Bootstrap{}, errors.New("config: missing required key \"port\"")
	}
	if b.Username, ok = get("username"); !ok {
		return Bootstrap{}, errors.New("config: missing required key \"username\"")
	}
	if b.Password, ok = get("passwd"); !ok {
		return Bootstrap{}, errors.New("config: missing required key \"passwd\"")
	}
	if b.RouterName, ok = get("router_name"); !ok {
		return Bootstrap{}, errors.New("config: missing required key \"router_name\"")
	}
	b.LogFile, _ = get("logfile")
	b.Syslog, _ = get("syslog")
	if b.LogFile == "" && b.Syslog == "" {
		return Bootstrap{}, errors.New("config: must set either \"logfile\" or \"syslog\"")
	}
	levelStr, ok := get("loglevel")
	if !ok {
		return Bootstrap{}, errors.New("config: missing required key \"loglevel\"")
	}
	levelInt, err := strconv.Atoi(levelStr)
	if err != nil {
		return Bootstrap{}, errors.Wrap(err, "config: parse \"loglevel\"")
	}
	b.LogLevel = obslog.ParseLevel(levelInt)

	if routersNode, ok := ctxNode.Child("routers"); ok {
		for _, r := range routersNode.ChildrenNamed("router") {
			name, _ := r.Child("name")
			domain, _ := r.Child("domain")
			rc := RouterConfig{Name: name.Text(), Domain: domain.Text()}
			if rc.Domain == "" {
				rc.Domain = r.Text()
			}
			for _, svc := range r.ChildrenNamed("services") {
				for _, s := range svc.ChildrenNamed("service") {
					rc.Services = append(rc.Services, s.Text())
				}
			}
			b.Routers = append(b.Routers, rc)
		}
	} else if domainsNode, ok := ctxNode.Child("domains"); ok {
		for _, d := range domainsNode.ChildrenNamed("domain") {
			b.Routers = append(b.Routers, RouterConfig{Name: b.RouterName, Domain: d.Text()})
		}
	}

	return b, nil
}
