package util

import "strings"

// StorageKey builds the namespaced storage key for a user key.
func StorageKey(kind, ns, key string) string {
	return kind + ":" + ns + ":" + key
}

// InNamespace reports whether storageKey belongs to the given kind/namespace.
func InNamespace(storageKey, kind, ns string) bool {
	return strings.HasPrefix(storageKey, kind+":"+ns+":")
}
