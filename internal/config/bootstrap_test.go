package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleBootstrap = `
<opensrf>
  <config_context>
    <domain>localhost</domain>
    <port>5222</port>
    <username>opensrf</username>
    <passwd>secret</passwd>
    <router_name>router</router_name>
    <logfile>/var/log/opensrf.log</logfile>
    <loglevel>4</loglevel>
    <routers>
      <router>
        <name>router</name>
        <domain>localhost</domain>
        <services>
          <service>opensrf.math</service>
        </services>
      </router>
    </routers>
  </config_context>
</opensrf>
`

func TestResolveBootstrapParsesRequiredKeys(t *testing.T) {
	root, err := ParseBootstrap([]byte(sampleBootstrap))
	require.NoError(t, err)

	b, err := ResolveBootstrap(root, "config_context")
	require.NoError(t, err)

	assert.Equal(t, "localhost", b.Domain)
	assert.Equal(t, 5222, b.Port)
	assert.Equal(t, "opensrf", b.Username)
	assert.Equal(t, "secret", b.Password)
	assert.Equal(t, "router", b.RouterName)
	assert.Equal(t, "/var/log/opensrf.log", b.LogFile)
	require.Len(t, b.Routers, 1)
	assert.Equal(t, "localhost", b.Routers[0].Domain)
	assert.Equal(t, []string{"opensrf.math"}, b.Routers[0].Services)
}

func TestResolveBootstrapMissingDomainFails(t *testing.T) {
	root, err := ParseBootstrap([]byte(`<opensrf><config_context><port>5222</port></config_context></opensrf>`))
	require.NoError(t, err)

	_, err = ResolveBootstrap(root, "config_context")
	assert.Error(t, err)
}

func TestResolveBootstrapLegacyDomainsAlias(t *testing.T) {
	doc := `
<opensrf>
  <config_context>
    <domain>localhost</domain>
    <port>5222</port>
    <username>opensrf</username>
    <passwd>secret</passwd>
    <router_name>router</router_name>
    <syslog>local0</syslog>
    <loglevel>2</loglevel>
    <domains>
      <domain>localhost</domain>
    </domains>
  </config_context>
</opensrf>
`
	root, err := ParseBootstrap([]byte(doc))
	require.NoError(t, err)

	b, err := ResolveBootstrap(root, "config_context")
	require.NoError(t, err)
	require.Len(t, b.Routers, 1)
	assert.Equal(t, "router", b.Routers[0].Name)
	assert.Equal(t, "localhost", b.Routers[0].Domain)
}
