//go:build !linux

package table

import "os"

func adviseSequential(*os.File) {}
