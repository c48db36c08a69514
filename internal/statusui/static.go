package statusui

import (
	"embed"
	"io/fs"
)

// staticFS packages the assets served under "/static/". There is no
// third-party static-asset library anywhere in the retrieved pack to ground
// this on; embed.FS + http.FileServer is the plain stdlib way to do this in
// Go and nothing here is complex enough to need more.
//
//go:embed static
var embeddedStatic embed.FS

// staticFS is embeddedStatic rooted at its "static" directory, so
// "/static/style.css" maps to "style.css" inside the FS rather than
// "static/style.css".
var staticFS = mustSub(embeddedStatic, "static")

func mustSub(f embed.FS, dir string) fs.FS {
	sub, err := fs.Sub(f, dir)
	if err != nil {
		panic(err)
	}
	return sub
}
