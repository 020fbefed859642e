/*
Package security groups Wiretap's transport-security code. Its only
subpackage is tls, which builds a crypto/tls configuration (with optional
mTLS) from certificate files and reloads certificates. There is no secret
management or API-key authentication code in this tree.

# TLS Configuration

Build a crypto/tls configuration:

	cfg := &tls.Config{
		Enabled:  true,
		CertFile: "/etc/wiretap/certs/server.crt",
		KeyFile:  "/etc/wiretap/certs/server.key",
		MinVersion: "1.3",
	}

	tlsConfig, err := cfg.ToTLSConfig()
	if err != nil {
		log.Fatal(err)
	}
*/
package security
