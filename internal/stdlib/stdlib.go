// Package stdlib embeds stdlib.js, the small helper script evaluated first
// in every Build (spec §4.2 step 2).
package stdlib

import "embed"

//go:embed js/stdlib.js
var files embed.FS

// Source returns the embedded stdlib.js contents.
func Source() (string, error) {
	b, err := files.ReadFile("js/stdlib.js")
	if err != nil {
		return "", err
	}
	return string(b), nil
}
