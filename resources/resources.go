package resources

import "embed"

//go:embed i18n migrations challenge
var FS embed.FS
