// Wiretap is a developer-facing intercepting proxy suite: a normal HTTP
// forward proxy, an outgoing HTTPS MITM forward proxy, and a DB wire TCP
// forwarder, each recording traffic and able to serve mocks in place of a
// live upstream.
//
// Usage:
//
//	# Start every configured proxy and the admin API
//	wiretap run
//
//	# Start with custom configuration file
//	wiretap run --config /path/to/config.yaml
//
//	# Show version information
//	wiretap version
//
//	# Generate a self-signed test certificate, or inspect a certificate file
//	wiretap certs generate
//	wiretap certs info certs/cert.pem
//
// For complete documentation, see: https://github.com/wiretap
package main

func main() {
	Execute()
}
