package server

import "embed"

//go:embed web
var webFS embed.FS
