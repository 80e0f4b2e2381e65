package integration

import "github.com/ChuLiYu/drf-sim/pkg/types"

func frameworkID(name string) types.FrameworkID { return types.FrameworkID(name) }
