// Package ui holds the embedded templates and static assets for the local
// viewer.
package ui

import "embed"

//go:embed all:templates
var TemplatesFS embed.FS
