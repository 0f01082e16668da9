package core

import (
	"regexp"
	"strings"
)

// SecretEnvPrefix prefixes the child environment variables carrying secrets.
const SecretEnvPrefix = "RELEASEGATE_SECRET_"

var secretRefPattern = regexp.MustCompile(`\$\{\{\s*secrets\.([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// SecretRefs lists the secret names referenced by a script, in order of
// first appearance.
func SecretRefs(script string) []string {
	var names []string
	seen := map[string]bool{}
	for _, m := range secretRefPattern.FindAllStringSubmatch(script, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

// bindSecrets rewrites ${{ secrets.NAME }} into a quoted shell variable
// reference, so the executed script never contains the value itself.
func bindSecrets(script string) string {
	return secretRefPattern.ReplaceAllStringFunc(script, func(ref string) string {
		name := secretRefPattern.FindStringSubmatch(ref)[1]
		return `"$` + SecretEnvPrefix + name + `"`
	})
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
