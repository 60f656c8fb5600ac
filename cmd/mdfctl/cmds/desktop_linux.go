//go:build linux

package cmds

import (
	_ "github.com/auto-mdf/mdfctl/pkg/desktop/x11"
)
