// Package web bundles the server-rendered pages and the assets they load.
package web

import (
	"embed"
	"io/fs"
)

// Templates holds layouts, partials, pages and printable documents.
//
//go:embed templates
var Templates embed.FS

//go:embed static
var static embed.FS

// Static returns the asset tree with the static/ prefix removed, so
// /static/js/app.js resolves to js/app.js.
func Static() fs.FS {
	sub, err := fs.Sub(static, "static")
	if err != nil {
		panic(err)
	}
	return sub
}
