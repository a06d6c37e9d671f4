package fetch

import "strings"

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
