package persistence

import "fmt"

// ConfigsKey is the namespaced key holding every persisted ProxyConfig of
// one kind ("normal", "outgoing", "db").
func ConfigsKey(kind string) string {
	return fmt.Sprintf("proxies/%s/configs", kind)
}

// MocksKey is the namespaced key holding one port's mock set.
func MocksKey(kind string, port int) string {
	return fmt.Sprintf("proxies/%s/%d/mocks", kind, port)
}

// RequestsKey is the namespaced key holding one port's request history.
func RequestsKey(kind string, port int) string {
	return fmt.Sprintf("proxies/%s/%d/requests", kind, port)
}

// SettingsKey is the single global settings blob.
const SettingsKey = "settings"

// DBMocksKey is the namespaced key holding one named database's DB-wire
// mocks, independent of any proxy port.
func DBMocksKey(dbName string) string {
	return fmt.Sprintf("db-mocks/%s", dbName)
}
