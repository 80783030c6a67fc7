// Package engine contiene helpers compartidos por el motor de pares y el exchange simulado.
package engine

// TruncateStr trunca un string a maxLen caracteres añadiendo "..." si es necesario.
func TruncateStr(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// ShortID abrevia un order hash (0x1234abcd...) para los logs.
func ShortID(id string) string {
	return TruncateStr(id, 14)
}
