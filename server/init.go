package server

import (
	"fmt"
	"os"
)

const defaultGatewayYAML = `endpoint: /graphql
service_name: federation-gateway
port: 8081
timeout_duration: 5s
enable_hang_over_request_header: true
disable_introspection: false
csrf_protection_enabled: true
batching_enabled: true
batching_limit: 10
operation_cache_size: 1000
jwt_signing_key: ""
services: []
opentelemetry:
  tracing:
    enable: false
`

// Init scaffolds a starter gateway.yaml in the current directory, the
// configuration Run loads on "serve". It refuses to overwrite an existing
// file.
func Init() error {
	if _, err := os.Stat("gateway.yaml"); err == nil {
		return fmt.Errorf("gateway.yaml already exists")
	}
	return os.WriteFile("gateway.yaml", []byte(defaultGatewayYAML), 0o644)
}
