package banner

import (
	"fmt"

	"github.com/aurodev/usergrid/pkg/config"
)

const banner = `
██╗   ██╗███████╗███████╗██████╗  ██████╗ ██████╗ ██╗██████╗
██║   ██║██╔════╝██╔════╝██╔══██╗██╔════╝ ██╔══██╗██║██╔══██╗
██║   ██║███████╗█████╗  ██████╔╝██║  ███╗██████╔╝██║██║  ██║
██║   ██║╚════██║██╔══╝  ██╔══██╗██║   ██║██╔══██╗██║██║  ██║
╚██████╔╝███████║███████╗██║  ██║╚██████╔╝██║  ██║██║██████╔╝
 ╚═════╝ ╚══════╝╚══════╝╚═╝  ╚═╝ ╚═════╝ ╚═╝  ╚═╝╚═╝╚═════╝
`

// PrintWithEff prints the banner using an EffectiveConfigResult which
// provides richer context (config, addr, dbpath, source).
func PrintWithEff(eff config.EffectiveConfigResult, version string) {
	var addr = eff.Addr
	if addr == "" && eff.Config != nil {
		addr = eff.Config.Addr()
	}
	var dbPath = eff.DBPath
	if dbPath == "" && eff.Config != nil {
		dbPath = eff.Config.Server.DBPath
	}
	var src = eff.Source
	if src == "" {
		src = "flags"
	}

	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s\n", addr)
	fmt.Printf("DB Path:  %s\n", dbPath)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	fmt.Printf("Source:   %s\n", src)
	if eff.Config != nil {
		fmt.Printf("Queue:    %s\n", eff.Config.Queue.Mode)
		fmt.Printf("Search:   %s\n", eff.Config.Search.Backend)
	}
	fmt.Println("===============================================================")
}
